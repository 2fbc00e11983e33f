package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntriesNewestFirst(t *testing.T) {
	l := New(3)
	for i := 1; i <= 5; i++ {
		l.Add(Entry{ID: fmt.Sprint(i), Attempts: i})
	}
	assert.Equal(t, 3, l.Len())

	var ids []string
	for _, e := range l.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"5", "4", "3"}, ids)
}

func TestDefaultSize(t *testing.T) {
	l := New(0)
	for i := 0; i < DefaultSize+10; i++ {
		l.Add(Entry{})
	}
	assert.Equal(t, DefaultSize, l.Len())
	l.Clear()
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Entries())
}

func TestConcurrentAdd(t *testing.T) {
	l := New(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Add(Entry{Status: "ok"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, l.Len())
}
