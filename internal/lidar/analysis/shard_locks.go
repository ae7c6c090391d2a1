package analysis

import "sync"

// NumShards is the number of voxel lock shards. Must be a power of two.
const NumShards = 1024

type shardLocks struct{ mu [NumShards]sync.Mutex }

func (sl *shardLocks) lock(off int)   { sl.mu[off&(NumShards-1)].Lock() }
func (sl *shardLocks) unlock(off int) { sl.mu[off&(NumShards-1)].Unlock() }
