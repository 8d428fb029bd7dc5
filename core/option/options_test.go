package option

import (
	"errors"
	"testing"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		Name    string
		Value   []string
		Code    uint8
		Payload []byte
		Err     bool
	}{
		{"router", []string{"192.168.0.1", "192.168.0.2"}, 3, []byte{192, 168, 0, 1, 192, 168, 0, 2}, false},
		{"nameserver", []string{"8.8.8.8"}, 6, []byte{8, 8, 8, 8}, false},
		{"netmask", []string{"255.255.0.0"}, 1, []byte{255, 255, 0, 0}, false},
		{"netmask", []string{"255.0.255.0"}, 0, nil, true},
		{"domain-name", []string{"example.com"}, 15, []byte("example.com"), false},
		{"domain-name", []string{"a", "b"}, 0, nil, true},
		{"mtu", []string{"1500"}, 26, []byte{0x05, 0xdc}, false},
		{"router", []string{"not-an-ip"}, 0, nil, true},
		{"router", nil, 0, nil, true},
		{"0xaa", []string{"0xaabbccdd", "0xeeff"}, 0xaa, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, false},
		{"0x88", []string{"fe"}, 0x88, []byte{0xfe}, false},
		{"0x88", nil, 0, nil, true},
		{"0xaa", []string{"fae"}, 0, nil, true},
		{"0xfff", []string{"fe"}, 0, nil, true},
		{"fo", []string{"bar"}, 0, nil, true},
	}

	for idx, c := range cases {
		o, v, err := Parse(c.Name, c.Value)

		if c.Err {
			assert.Error(t, err, "case %d: expected an error", idx)
			continue
		}

		if assert.NoError(t, err, "case %d", idx) {
			assert.Equal(t, c.Code, o.Code(), "case %d: code does not match", idx)
			assert.Equal(t, c.Payload, v.ToBytes(), "case %d: payload does not match", idx)
		}
	}
}

func TestUnknownOption(t *testing.T) {
	_, _, err := ParseKnown("0xaa", []string{"00"})
	assert.True(t, errors.Is(err, ErrUnknownOption))

	_, _, err = Parse("foo", []string{"bar"})
	assert.True(t, errors.Is(err, ErrUnknownOption))
}

func TestCode(t *testing.T) {
	code, ok := Code("router")
	assert.True(t, ok)
	assert.Equal(t, dhcpv4.OptionRouter, code)

	_, ok = Code("foo")
	assert.False(t, ok)
}
