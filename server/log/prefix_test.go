package log

import (
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestPrefixLogger(t *testing.T) {
	var l logs.Log = NewPrefixLogger(logs.NewTestingLog(t), "Stream front:")
	p := l.(*PrefixLogger)
	require.Equal(t, "Stream front: ", p.Prefix)
	l.Infof("hello %v", 1)
	l.Warnf("careful")
}
