package encoding

import (
	"encoding"
	"errors"
	"testing"
)

// Assert interface implemented.
var (
	_ encoding.TextMarshaler   = (*HexEncoding)(nil)
	_ encoding.TextUnmarshaler = (*HexEncoding)(nil)
)

type unmarshalTestCase struct {
	name, input string

	expectRecords int
	expectErr     error
}

func TestHexEncoder_UnmarshalText(t *testing.T) {
	t.Parallel()

	tcs := []unmarshalTestCase{
		{
			name:      "empty",
			input:     "",
			expectErr: errEmpty,
		},
		{
			name:      "eof record",
			input:     ":00000001FF",
			expectErr: errEmpty,
		},
		{
			name:      "eof record with newlines",
			input:     "\n\n:00000001FF\n\n",
			expectErr: errEmpty,
		},
		{
			name:      "invalid bytes",
			input:     ":invalid",
			expectErr: errInvalidHex,
		},
		{
			name:      "nonsense",
			input:     "u wot mate",
			expectErr: errInvalidHex,
		},
		{
			name:          "data record",
			input:         ":10246200464C5549442050524F46494C4500464C33\n",
			expectRecords: 1,
		},
		{
			name:          "another data record",
			input:         ":10001300AC12AD13AE10AF1112002F8E0E8F0F2244",
			expectRecords: 1,
		},
		{
			name:          "data records",
			input:         ":10246200464C5549442050524F46494C4500464C33\n:10246200464C5549442050524F46494C4500464C33\n",
			expectRecords: 2,
		},
		{
			name:      "too short",
			input:     ":0",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":00",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":FF0",
			expectErr: errInvalidHex,
		},
		{
			name:      "too short",
			input:     ":FF00000",
			expectErr: errInvalidHex,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			records, err := unmarshal(tc)

			t.Logf("have: %q, got: %+v, err: %v", tc.input, records, err)

			switch {
			case tc.expectErr != nil && err != nil:
				if !errors.Is(err, tc.expectErr) {
					t.Errorf("unexpected error: got: %s, want: %s", err, tc.expectErr)
				}
			case tc.expectErr != nil && err == nil:
				t.Errorf("expected error: %s", tc.expectErr)
			case tc.expectErr == nil && err != nil:
				t.Errorf("unexpected error: got: %v", err)
			case len(records) != tc.expectRecords:
				t.Errorf("unexpected record count: want: %d, got: %d", tc.expectRecords, len(records))
			}
		})
	}
}

type marshalTestCase struct {
	name  string
	input []Record

	expectOutput string
	expectErr    error
}

func TestHexEncoder_MarshalText(t *testing.T) {
	t.Parallel()

	tcs := []marshalTestCase{
		{
			name:         "nil",
			input:        nil,
			expectOutput: ":00000001ff\n",
		},
		{
			name: "fixed string",
			input: []Record{
				{
					Addr: 0x2462,
					Data: []byte("FLUID PROFILE\x00FL"),
				},
			},
			expectOutput: ":10246200464c5549442050524f46494c4500464c33\n:00000001ff\n",
		},
	}

	for _, tc := range tcs {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			output, err := marshal(tc)

			t.Logf("have: %+v, got: %q, err: %v", tc.input, output, err)

			switch {
			case tc.expectErr != nil && err != nil:
				if !errors.Is(err, tc.expectErr) {
					t.Errorf("unexpected error: got: %s, want: %s", err, tc.expectErr)
				}
			case tc.expectErr != nil && err == nil:
				t.Errorf("expected error: %s", tc.expectErr)
			case tc.expectErr == nil && err != nil:
				t.Errorf("unexpected error: got: %v", err)
			default:
				if tc.expectOutput != output {
					t.Errorf("got: %q, want: %q", output, tc.expectOutput)
				}
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	h := HexEncoding{Records: []Record{
		{Addr: 4, Data: []byte{0xaa, 0xbb}},
		{Addr: 0, Data: []byte{0x01, 0x02}},
	}}

	flat := h.Flatten()

	want := []byte{0x01, 0x02, 0, 0, 0xaa, 0xbb}
	if len(flat) != len(want) {
		t.Fatalf("len: want %d, got %d", len(want), len(flat))
	}

	for i := range want {
		if flat[i] != want[i] {
			t.Errorf("byte %d: want %#x, got %#x", i, want[i], flat[i])
		}
	}
}

func marshal(tc marshalTestCase) (string, error) {
	encoder := HexEncoding{
		Records: tc.input,
	}
	out, err := encoder.MarshalText()

	return string(out), err
}

func unmarshal(tc unmarshalTestCase) ([]Record, error) {
	decoder := HexEncoding{}
	err := decoder.UnmarshalText([]byte(tc.input))

	return decoder.Records, err
}
