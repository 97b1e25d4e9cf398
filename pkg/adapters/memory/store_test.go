package memory

import (
	"testing"

	"github.com/aretw0/stanza/pkg/ports"
	"github.com/aretw0/stanza/pkg/ports/tests"
)

func TestSchedulerStoreContract(t *testing.T) {
	tests.RunSchedulerStoreContract(t, func(t *testing.T) ports.SchedulerStore {
		return NewStore()
	})
}
