// Package option parses DHCP options from their textual Dhcpfile
// representation
package option

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"
)

type (
	single func(string) (dhcpv4.OptionValue, error)
	list   func([]string) (dhcpv4.OptionValue, error)

	known struct {
		code  dhcpv4.OptionCode
		parse interface{}
	}
)

var (
	// ErrUnknownOption is returned from ParseKnown when the option name is not defined
	// in the list below
	ErrUnknownOption = errors.New("unknown option")

	options = map[string]known{
		// IP list options
		"router":            {dhcpv4.OptionRouter, list(IPListOption)},
		"nameserver":        {dhcpv4.OptionDomainNameServer, list(IPListOption)},
		"ntp-server":        {dhcpv4.OptionNTPServers, list(IPListOption)},
		"server-identifier": {dhcpv4.OptionServerIdentifier, list(IPListOption)},

		// IP options
		"broadcast-address": {dhcpv4.OptionBroadcastAddress, single(IPOption)},
		"netmask":           {dhcpv4.OptionSubnetMask, single(MaskOption)},

		// String options
		"hostname":         {dhcpv4.OptionHostName, single(StringOption)},
		"domain-name":      {dhcpv4.OptionDomainName, single(StringOption)},
		"root-path":        {dhcpv4.OptionRootPath, single(StringOption)},
		"class-identifier": {dhcpv4.OptionClassIdentifier, single(StringOption)},
		"tftp-server-name": {dhcpv4.OptionTFTPServerName, single(StringOption)},
		"filename":         {dhcpv4.OptionBootfileName, single(StringOption)},

		// numbers
		"mtu": {dhcpv4.OptionInterfaceMTU, single(UInt16Option)},

		// strings
		"user-class-information": {dhcpv4.OptionUserClassInformation, list(StringListOption)},
	}
)

// StringOption converts the given string into a DHCPv4 option value
func StringOption(s string) (dhcpv4.OptionValue, error) {
	return dhcpv4.String(s), nil
}

// StringListOption converts the given string slice into a DHCPv4 option value
func StringListOption(s []string) (dhcpv4.OptionValue, error) {
	return dhcpv4.Strings(s), nil
}

// IPOption converts the given string into a DHCPv4 option value
func IPOption(s string) (dhcpv4.OptionValue, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid IPv4 address %q", s)
	}

	return dhcpv4.IP(ip), nil
}

// MaskOption converts a dotted netmask like 255.255.255.0 into a DHCPv4
// option value
func MaskOption(s string) (dhcpv4.OptionValue, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid netmask %q", s)
	}

	mask := net.IPMask(ip)
	if _, bits := mask.Size(); bits == 0 {
		return nil, fmt.Errorf("non-canonical netmask %q", s)
	}

	return dhcpv4.IPMask(mask), nil
}

// IPListOption converts the given string slice into a DHCPv4 option value
func IPListOption(s []string) (dhcpv4.OptionValue, error) {
	ips := make([]net.IP, 0, len(s))

	for _, i := range s {
		ip, err := IPOption(i)
		if err != nil {
			return nil, err
		}

		ips = append(ips, net.IP(ip.(dhcpv4.IP)))
	}

	return dhcpv4.IPs(ips), nil
}

// UInt16Option converts the given string into a DHCPv4 option value
func UInt16Option(s string) (dhcpv4.OptionValue, error) {
	i64, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return nil, err
	}

	return dhcpv4.Uint16(uint16(i64)), nil
}

// ParseKnown parses the given name and string values
// and returns their DHCP option representation if known
func ParseKnown(name string, values []string) (dhcpv4.OptionCode, dhcpv4.OptionValue, error) {
	opt, ok := options[name]
	if !ok {
		return nil, nil, ErrUnknownOption
	}

	if len(values) == 0 {
		return nil, nil, fmt.Errorf("option %s requires a value", name)
	}

	var (
		val dhcpv4.OptionValue
		err error
	)

	switch fn := opt.parse.(type) {
	case list:
		val, err = fn(values)
	case single:
		if len(values) > 1 {
			return nil, nil, fmt.Errorf("option %s only supports one value", name)
		}
		val, err = fn(values[0])
	default:
		err = errors.New("unknown parser function")
	}

	if err != nil {
		return nil, nil, fmt.Errorf("option %s: %w", name, err)
	}

	return opt.code, val, nil
}

// ParseCustom parses an option given by it's numeric code, like 0xaa.
// Values are hex strings that are concatenated, an optional 0x prefix
// is ignored
func ParseCustom(name string, values []string) (dhcpv4.OptionCode, dhcpv4.OptionValue, error) {
	if !strings.HasPrefix(name, "0x") {
		return nil, nil, ErrUnknownOption
	}

	code, err := strconv.ParseUint(name[2:], 16, 8)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid option code %q", name)
	}

	if len(values) == 0 {
		return nil, nil, fmt.Errorf("option %s requires a value", name)
	}

	var payload []byte
	for _, v := range values {
		b, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil {
			return nil, nil, fmt.Errorf("option %s: invalid hex value %q", name, v)
		}

		payload = append(payload, b...)
	}

	return dhcpv4.GenericOptionCode(code), dhcpv4.OptionGeneric{Data: payload}, nil
}

// Parse parses a known or a custom option
func Parse(name string, values []string) (dhcpv4.OptionCode, dhcpv4.OptionValue, error) {
	code, val, err := ParseKnown(name, values)
	if errors.Is(err, ErrUnknownOption) {
		return ParseCustom(name, values)
	}

	return code, val, err
}

// Code returns the DHCPv4 option code for the known option name
func Code(name string) (dhcpv4.OptionCode, bool) {
	opt, ok := options[name]
	return opt.code, ok
}
