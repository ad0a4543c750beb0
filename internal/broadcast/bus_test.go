package broadcast

import (
	"testing"

	"shared-notes-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishExcludesSender(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("n1")
	b := bus.Subscribe("n1")
	other := bus.Subscribe("n2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	a.Publish(&domain.SharedNote{ID: "n1", Content: "from a"})

	select {
	case note := <-b.C():
		assert.Equal(t, "from a", note.Content)
	default:
		t.Fatal("sibling did not receive the record")
	}

	assert.Empty(t, a.C(), "sender received its own record")
	assert.Empty(t, other.C(), "other topic received the record")
}

func TestPublishCopiesRecord(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("n1")
	b := bus.Subscribe("n1")

	note := &domain.SharedNote{ID: "n1", Content: "v1"}
	a.Publish(note)
	note.Content = "mutated"

	assert.Equal(t, "v1", (<-b.C()).Content)
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("n1")
	b := bus.Subscribe("n1")

	for i := 0; i < subscriptionBuffer+5; i++ {
		a.Publish(&domain.SharedNote{ID: "n1"})
	}

	assert.Len(t, b.C(), subscriptionBuffer)
}

func TestCloseReleasesSubscription(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe("n1")
	b := bus.Subscribe("n1")
	require.Equal(t, 2, bus.Subscribers("n1"))

	b.Close()
	b.Close()

	_, ok := <-b.C()
	assert.False(t, ok)
	assert.Equal(t, 1, bus.Subscribers("n1"))

	a.Publish(&domain.SharedNote{ID: "n1"})
	a.Close()
	assert.Equal(t, 0, bus.Subscribers("n1"))
}
