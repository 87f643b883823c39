package filterwatcher

import "github.com/bft-labs/aprsship/pkg/log"

type nopLogger struct{}

func (nopLogger) Debug(string, ...log.Field) {}
func (nopLogger) Info(string, ...log.Field)  {}
func (nopLogger) Warn(string, ...log.Field)  {}
func (nopLogger) Error(string, ...log.Field) {}
