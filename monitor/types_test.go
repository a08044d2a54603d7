package monitor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iron-fish/ironfish-bridge/monitor"
)

func TestBlockRange_Split(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name     string
		Range    monitor.BlockRange
		MaxSize  uint
		Expected []monitor.BlockRange
	}{
		{"even halves", monitor.BlockRange{From: 100, To: 199}, 50, []monitor.BlockRange{{From: 100, To: 149}, {From: 150, To: 199}}},
		{"short tail", monitor.BlockRange{From: 100, To: 200}, 90, []monitor.BlockRange{{From: 100, To: 189}, {From: 190, To: 200}}},
		{"single block tail", monitor.BlockRange{From: 100, To: 200}, 50, []monitor.BlockRange{{From: 100, To: 149}, {From: 150, To: 199}, {From: 200, To: 200}}},
		{"fits exactly", monitor.BlockRange{From: 100, To: 200}, 101, []monitor.BlockRange{{From: 100, To: 200}}},
		{"one block", monitor.BlockRange{From: 100, To: 100}, 10, []monitor.BlockRange{{From: 100, To: 100}}},
		{"size one", monitor.BlockRange{From: 7, To: 9}, 1, []monitor.BlockRange{{From: 7, To: 7}, {From: 8, To: 8}, {From: 9, To: 9}}},
		{"unlimited size", monitor.BlockRange{From: 100, To: 100000}, 0, []monitor.BlockRange{{From: 100, To: 100000}}},
		{"inverted", monitor.BlockRange{From: 200, To: 100}, 50, []monitor.BlockRange{}},
		{"inverted unlimited", monitor.BlockRange{From: 200, To: 100}, 0, []monitor.BlockRange{}},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, test.Expected, test.Range.Split(test.MaxSize))
		})
	}
}

func TestPollWindow(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name       string
		StoredHead uint
		ChainHead  uint
		Finality   uint
		QueryRange uint
		Scan       monitor.BlockRange
		NewHead    uint
		OK         bool
	}{
		{"capped by finality", 100, 115, 10, 50, monitor.BlockRange{From: 100, To: 104}, 105, true},
		{"capped by query range", 100, 1000, 10, 5, monitor.BlockRange{From: 100, To: 104}, 105, true},
		{"two final blocks", 100, 112, 10, 50, monitor.BlockRange{From: 100, To: 101}, 102, true},
		{"one final block", 100, 111, 10, 50, monitor.BlockRange{}, 0, false},
		{"nothing final", 100, 105, 10, 50, monitor.BlockRange{}, 0, false},
		{"chain shorter than finality", 0, 5, 10, 50, monitor.BlockRange{}, 0, false},
		{"stored head ahead of chain", 200, 150, 10, 50, monitor.BlockRange{}, 0, false},
		{"from genesis", 0, 30, 10, 50, monitor.BlockRange{From: 0, To: 19}, 20, true},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			scan, newHead, ok := monitor.PollWindow(test.StoredHead, test.ChainHead, test.Finality, test.QueryRange)
			require.Equal(t, test.OK, ok)
			require.Equal(t, test.Scan, scan)
			require.Equal(t, test.NewHead, newHead)
		})
	}
}
