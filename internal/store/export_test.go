package store

// dropFromBuckets removes the entry for path from the hash index only,
// leaving the path index untouched, so the next Remove or Verify trips over
// the divergence.
func (s *Store) dropFromBuckets(path string) {
	key, err := normalize(path)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.paths.Get(key)
	if !ok {
		return
	}
	h := s.hasher.Sum(e.record.Pattern)
	bucket := s.buckets[h]
	for i, candidate := range bucket {
		if candidate == e {
			s.buckets[h] = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(s.buckets[h]) == 0 {
		delete(s.buckets, h)
	}
}

func (s *Store) bucketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *Store) bucketLen(h int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets[h])
}
