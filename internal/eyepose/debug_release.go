//go:build !debug
// +build !debug

package eyepose

func DebugLog(format string, args ...interface{})     {}
func DebugLogOnce(format string, args ...interface{}) {}
