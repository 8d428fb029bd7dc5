package log

import (
	"testing"

	"github.com/apex/log"
	_ "github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/plugin/test"
	"github.com/stretchr/testify/assert"
)

func TestSetupLogging(t *testing.T) {
	isTerminal = func() bool { return false }
	defer log.SetLevel(log.InfoLevel)

	ctrl := test.CreateTestBed(t, "log debug")
	assert.NoError(t, setupLogging(ctrl))
	assert.Equal(t, log.DebugLevel, log.Log.(*log.Logger).Level)

	for _, input := range []string{
		"log",
		"log foo",
		"log debug info",
		"log debug\nlog info",
	} {
		ctrl := test.CreateTestBed(t, input)
		assert.Error(t, setupLogging(ctrl), input)
	}
}
