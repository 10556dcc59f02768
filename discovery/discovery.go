// Package discovery locates SCPI instruments on the network and on USB.
// It is deliberately decoupled from acquisition: it answers "what is out
// there", callers decide what to connect to.
package discovery

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/gousb"
)

// Identity is a parsed *IDN? response.  The standard response has four
// comma separated fields.
type Identity struct {
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Firmware string `json:"firmware"`
}

func (i Identity) String() string {
	return strings.Join([]string{i.Vendor, i.Model, i.Serial, i.Firmware}, ",")
}

// ParseIdentity splits an *IDN? response into its fields.
func ParseIdentity(resp string) (Identity, error) {
	pieces := strings.Split(strings.TrimSpace(resp), ",")
	if len(pieces) != 4 {
		return Identity{}, fmt.Errorf("identification %q has %d fields, expected 4", resp, len(pieces))
	}
	return Identity{
		Vendor:   strings.TrimSpace(pieces[0]),
		Model:    strings.TrimSpace(pieces[1]),
		Serial:   strings.TrimSpace(pieces[2]),
		Firmware: strings.TrimSpace(pieces[3]),
	}, nil
}

// Instrument is one discovered instrument and how to reach it.
type Instrument struct {
	// Addr is the network address for TCP instruments, blank for USB
	Addr string `json:"addr,omitempty"`

	// USBAddr is "vid:pid" for USB instruments, blank for TCP
	USBAddr string `json:"usbAddr,omitempty"`

	Identity Identity `json:"identity"`
}

// Probe connects to addr, sends *IDN?, and parses the reply.  It uses its
// own short-lived connection so probing never disturbs a pooled session.
func Probe(addr string, timeout time.Duration) (Identity, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Identity{}, err
	}
	defer conn.Close()
	if err = conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Identity{}, err
	}
	if _, err = io.WriteString(conn, "*IDN?\n"); err != nil {
		return Identity{}, err
	}
	// the reply may straddle segments; read up to the terminator, or accept
	// what arrived before the peer closed
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return Identity{}, err
	}
	return ParseIdentity(reply)
}

// Scan probes every candidate address concurrently and returns the
// instruments that answered.  Unreachable addresses are skipped, not
// errors; a scan of a mostly empty subnet is the normal case.
func Scan(addrs []string, timeout time.Duration) []Instrument {
	type result struct {
		addr string
		id   Identity
		err  error
	}
	results := make(chan result, len(addrs))
	for _, addr := range addrs {
		go func(addr string) {
			id, err := Probe(addr, timeout)
			results <- result{addr: addr, id: id, err: err}
		}(addr)
	}
	var found []Instrument
	for range addrs {
		r := <-results
		if r.err != nil {
			continue
		}
		found = append(found, Instrument{Addr: r.addr, Identity: r.id})
	}
	return found
}

// usbtmcClass is the USB class/subclass identifying test and measurement
// devices: application specific (0xFE), subclass USBTMC (0x03).
const (
	usbClassApplication = 0xFE
	usbSubclassTMC      = 0x03
)

// ScanUSB enumerates USBTMC-class devices on the bus.  The identity holds
// the descriptor strings; a SCPI *IDN? requires claiming the interface,
// which is left to the caller.
func ScanUSB() ([]Instrument, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	var found []Instrument
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, cfg := range desc.Configs {
			for _, iface := range cfg.Interfaces {
				for _, alt := range iface.AltSettings {
					if alt.Class == usbClassApplication && alt.SubClass == usbSubclassTMC {
						return true
					}
				}
			}
		}
		return false
	})
	for _, dev := range devs {
		inst := Instrument{
			USBAddr: fmt.Sprintf("%s:%s", dev.Desc.Vendor, dev.Desc.Product),
		}
		if s, serr := dev.Manufacturer(); serr == nil {
			inst.Identity.Vendor = s
		}
		if s, serr := dev.Product(); serr == nil {
			inst.Identity.Model = s
		}
		if s, serr := dev.SerialNumber(); serr == nil {
			inst.Identity.Serial = s
		}
		found = append(found, inst)
		dev.Close()
	}
	// OpenDevices may return both devices and an error; the devices are
	// still valid
	if err != nil && len(found) == 0 {
		return nil, err
	}
	return found, nil
}
