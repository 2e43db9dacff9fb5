package testsupport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextSequence_Increments(t *testing.T) {
	seq1 := NextSequence()
	seq2 := NextSequence()

	assert.Equal(t, seq1+1, seq2, "Should increment by 1")
}

func TestUniqueName_GeneratesUnique(t *testing.T) {
	name1 := UniqueName("tmp_audit")
	name2 := UniqueName("tmp_audit")

	assert.NotEqual(t, name1, name2, "Names should be unique")
	assert.Contains(t, name1, "tmp_audit_", "Should contain prefix")
}

func TestUniqueAddress_Format(t *testing.T) {
	addr := UniqueAddress()

	assert.Len(t, addr, 42, "0x plus 40 hex chars")
	assert.Regexp(t, `^0x[0-9a-f]{40}$`, addr)
	assert.NotEqual(t, addr, UniqueAddress())
}

func TestNextSequence_Concurrent(t *testing.T) {
	const goroutines = 50

	var wg sync.WaitGroup
	seen := sync.Map{}
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			seen.Store(NextSequence(), true)
		}()
	}
	wg.Wait()

	count := 0
	seen.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.Equal(t, goroutines, count, "All sequences should be unique")
}
