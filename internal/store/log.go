package store

import "os"

// CurrentLogOffset returns the current size in bytes of a node's
// execution log — captured before an attempt starts so its
// AttemptRecord can later bound exactly the log slice that attempt
// produced (I7). A log that doesn't exist yet has offset 0.
func (s *Store) CurrentLogOffset(planID, nodeID string) (int64, error) {
	path, err := s.ExecutionLogPath(planID, nodeID)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// OpenExecutionLogAppend opens the current attempt's execution log for
// appending, creating it if necessary.
func (s *Store) OpenExecutionLogAppend(planID, nodeID string) (*os.File, error) {
	path, err := s.ExecutionLogPath(planID, nodeID)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// ReadLogSlice reads the byte range [offset, endOffset) from a node's
// current execution log, used to reconstruct an AttemptRecord's
// isolated log slice (I6/I7) or to feed auto-heal's "last ~200 lines"
// diagnostic context.
func (s *Store) ReadLogSlice(planID, nodeID string, offset, endOffset int64) ([]byte, error) {
	path, err := s.ExecutionLogPath(planID, nodeID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if endOffset <= offset {
		return nil, nil
	}
	buf := make([]byte, endOffset-offset)
	n, err := f.ReadAt(buf, offset)
	if n > 0 {
		return buf[:n], nil
	}
	return nil, err
}
