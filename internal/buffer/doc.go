// Package buffer provides thread-safe per-partition buffering of consumed
// events.
//
// A PartitionBuffer collects events until the rotation policy or the flush
// schedule decides to collapse them:
//
//	buf := buffer.New(partitionID, maxSizeBytes, maxRecords)
//	if err := buf.Add(consumed); errors.Is(err, apperrors.ErrBufferFull) {
//	    batch := buf.Drain()
//	    // collapse batch, deliver it, then commit its offsets
//	}
//
// The size limit is an estimate over body, key, topic and headers. An empty
// buffer accepts any single event, so one oversized record still forms a
// batch of its own.
//
// Manager hands out one buffer per partition and lists the partitions it
// knows about, which the scheduled flush walks:
//
//	manager := buffer.NewManager(maxSizeBytes, maxRecords)
//	for _, id := range manager.Partitions() {
//	    buf := manager.GetOrCreate(id)
//	    ...
//	}
package buffer
