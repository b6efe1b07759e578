package evaluation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	first := Fingerprint("rubric", "question", "answer", "1")
	second := Fingerprint("rubric", "question", "answer", "1")
	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestFingerprintSensitiveToEveryField(t *testing.T) {
	base := Fingerprint("rubric", "question", "answer", "1")
	require.NotEqual(t, base, Fingerprint("rubric2", "question", "answer", "1"))
	require.NotEqual(t, base, Fingerprint("rubric", "question2", "answer", "1"))
	require.NotEqual(t, base, Fingerprint("rubric", "question", "answer2", "1"))
	require.NotEqual(t, base, Fingerprint("rubric", "question", "answer", "2"))
}

func TestFingerprintSeparatorPreventsBoundaryCollisions(t *testing.T) {
	// "ab"+"c" and "a"+"bc" concatenate identically without a separator.
	require.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}

func TestFingerprintTrimsButKeepsCase(t *testing.T) {
	require.Equal(t, Fingerprint("  rubric", "answer  "), Fingerprint("rubric", "answer"))
	require.NotEqual(t, Fingerprint("Answer"), Fingerprint("answer"))
}
