package option

import (
	"fmt"
	"net"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/nextdhcp/nextpool/core/dhcpserver"
	"github.com/nextdhcp/nextpool/core/option"
)

// reserved options are managed by the server and cannot be configured
var reserved = map[uint8]bool{
	dhcpv4.OptionDHCPMessageType.Code():      true,
	dhcpv4.OptionServerIdentifier.Code():     true,
	dhcpv4.OptionIPAddressLeaseTime.Code():   true,
	dhcpv4.OptionRequestedIPAddress.Code():   true,
	dhcpv4.OptionMessage.Code():              true,
	dhcpv4.OptionParameterRequestList.Code(): true,
}

// apply parses the option name with values and stores it in cfg. Router,
// name servers and the subnet mask are part of the standard options, all
// others are sent as extra options
func apply(cfg *dhcpserver.Config, name string, values []string) error {
	code, value, err := option.Parse(name, values)
	if err != nil {
		return err
	}

	if reserved[code.Code()] {
		return fmt.Errorf("option %s cannot be configured", code)
	}

	switch code.Code() {
	case dhcpv4.OptionRouter.Code():
		cfg.Router = ipList(value)
	case dhcpv4.OptionDomainNameServer.Code():
		cfg.DNS = ipList(value)
	case dhcpv4.OptionSubnetMask.Code():
		cfg.Netmask = net.IPMask(value.ToBytes())
	default:
		for i, opt := range cfg.Options {
			if opt.Code.Code() == code.Code() {
				cfg.Options[i].Value = value
				return nil
			}
		}

		cfg.Options = append(cfg.Options, dhcpv4.Option{Code: code, Value: value})
	}

	return nil
}

func ipList(v dhcpv4.OptionValue) []net.IP {
	var ips dhcpv4.IPs
	if err := ips.FromBytes(v.ToBytes()); err != nil {
		return nil
	}

	return []net.IP(ips)
}
