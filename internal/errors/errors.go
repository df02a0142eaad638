package errors

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Failure is one recoverable per-file error observed during a pipeline run.
type Failure struct {
	Class     string
	File      string
	Err       error
	Timestamp time.Time
}

// Error implements the error interface
func (f Failure) Error() string {
	return f.Err.Error()
}

// Unwrap returns the wrapped error
func (f Failure) Unwrap() error {
	return f.Err
}

// ErrorCollector collects failures from concurrent transform workers
type ErrorCollector struct {
	failures []Failure
	mutex    sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		failures: make([]Failure, 0),
	}
}

// Add records err for the given file. KilnErrors missing a class or file
// inherit them from the arguments.
func (ec *ErrorCollector) Add(class, file string, err error) {
	if err == nil {
		return
	}

	var ke *KilnError
	if errors.As(err, &ke) {
		if ke.Class == "" {
			ke.Class = class
		}
		if ke.FilePath == "" {
			ke.FilePath = file
		}
	}

	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.failures = append(ec.failures, Failure{
		Class:     class,
		File:      file,
		Err:       err,
		Timestamp: time.Now(),
	})
}

// Failures returns all failures ordered by file path
func (ec *ErrorCollector) Failures() []Failure {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]Failure, len(ec.failures))
	copy(result, ec.failures)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].File < result[j].File
	})

	return result
}

// Fatal returns the first non-recoverable error, if any
func (ec *ErrorCollector) Fatal() error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	for _, f := range ec.failures {
		if IsFatal(f.Err) {
			return f.Err
		}
	}

	return nil
}
