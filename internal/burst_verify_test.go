package internal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func burst(t *testing.T, exp BurstExpectation) [][]byte {
	var out [][]byte
	st := exp.Initial
	for i := 0; i < exp.Count; i++ {
		buf, err := exp.Template.Marshal(st)
		require.NoError(t, err)
		out = append(out, buf)
		st = st.Next(exp.Mode)
	}
	return out
}

func TestVerifyBurst(t *testing.T) {
	exp := ExpectationFor(DefaultSenderConfig())
	require.NoError(t, VerifyBurst(burst(t, exp), exp))
}

func TestVerifyBurstScriptBytes(t *testing.T) {
	// five copies of the historical script's buffer, as sent on the wire
	var datagrams [][]byte
	buf := BuildInitialPacket()
	for i := 0; i < 5; i++ {
		datagrams = append(datagrams, append([]byte(nil), buf...))
		buf[2]++
		buf[7]++
	}

	cfg := DefaultSenderConfig()
	cfg.Mode = CounterModeLegacy
	require.NoError(t, VerifyBurst(datagrams, ExpectationFor(cfg)))

	cfg.Mode = CounterModeByte
	require.Error(t, VerifyBurst(datagrams, ExpectationFor(cfg)))
}

func TestVerifyBurstErrors(t *testing.T) {
	exp := ExpectationFor(DefaultSenderConfig())

	for _, ca := range []struct {
		name      string
		mutate    func([][]byte) [][]byte
		iteration int
	}{
		{
			"missing packet",
			func(d [][]byte) [][]byte { return d[:4] },
			0,
		},
		{
			"extra packet",
			func(d [][]byte) [][]byte { return append(d, d[4]) },
			0,
		},
		{
			"truncated",
			func(d [][]byte) [][]byte { d[1] = d[1][:27]; return d },
			2,
		},
		{
			"ssrc changed",
			func(d [][]byte) [][]byte { d[2][11] = 0x02; return d },
			3,
		},
		{
			"payload changed",
			func(d [][]byte) [][]byte { d[3][20] = 0xff; return d },
			4,
		},
		{
			"sequence skipped",
			func(d [][]byte) [][]byte { d[4][3] = 0x07; return d },
			5,
		},
		{
			"timestamp out of step",
			func(d [][]byte) [][]byte { d[1][7] = 0x01; return d },
			2,
		},
		{
			"marker set",
			func(d [][]byte) [][]byte { d[0][1] = 0x80; return d },
			1,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			err := VerifyBurst(ca.mutate(burst(t, exp)), exp)
			require.Error(t, err)
			require.Equal(t, ErrCodeVerification, ErrorCode(err))

			var sendErr *SendError
			require.True(t, errors.As(err, &sendErr))
			require.Equal(t, ca.iteration, sendErr.Iteration)
		})
	}
}
