package memory_test

import (
	"testing"

	"github.com/xraph/processes/store"
	"github.com/xraph/processes/store/memory"
	"github.com/xraph/processes/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
