package discovery

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseIdentity(t *testing.T) {
	id, err := ParseIdentity("TEKTRONIX,MSO44B,C000001,CF:91.1CT FV:2.0.3\n")
	if err != nil {
		t.Fatalf("ParseIdentity: %v", err)
	}
	if id.Vendor != "TEKTRONIX" || id.Model != "MSO44B" || id.Serial != "C000001" {
		t.Errorf("identity = %+v", id)
	}
	if id.Firmware != "CF:91.1CT FV:2.0.3" {
		t.Errorf("firmware = %q", id.Firmware)
	}
}

func TestParseIdentityRejectsMalformed(t *testing.T) {
	for _, resp := range []string{"", "TEKTRONIX", "a,b,c", "a,b,c,d,e"} {
		if _, err := ParseIdentity(resp); err == nil {
			t.Errorf("expected error for %q", resp)
		}
	}
}

// idnServer answers *IDN? once per connection with the given response.
func idnServer(t *testing.T, resp string) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 64)
				n, err := c.Read(buf)
				if err != nil {
					return
				}
				if strings.Contains(string(buf[:n]), "*IDN?") {
					c.Write([]byte(resp))
				}
			}(conn)
		}
	}()
	return l.Addr().String()
}

func TestProbe(t *testing.T) {
	addr := idnServer(t, "TEKTRONIX,AFG31052,C000002,SCPI:99.0\n")
	id, err := Probe(addr, time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if id.Model != "AFG31052" {
		t.Errorf("model = %q", id.Model)
	}
}

func TestProbeReassemblesSplitResponse(t *testing.T) {
	resp := "TEKTRONIX,MSO44B,C000001,CF:91.1CT FV:2.0.3\n"
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		// dribble the reply a few bytes at a time
		for i := 0; i < len(resp); i += 8 {
			end := i + 8
			if end > len(resp) {
				end = len(resp)
			}
			conn.Write([]byte(resp[i:end]))
			time.Sleep(5 * time.Millisecond)
		}
	}()
	id, err := Probe(l.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if id.Model != "MSO44B" || id.Firmware != "CF:91.1CT FV:2.0.3" {
		t.Errorf("identity = %+v", id)
	}
}

func TestProbeUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close() // nothing listens here now
	if _, err := Probe(addr, 100*time.Millisecond); err == nil {
		t.Error("expected error probing closed port")
	}
}

func TestScanSkipsDeadAddresses(t *testing.T) {
	live := idnServer(t, "TEKTRONIX,MSO44B,C000001,FV:2.0.3\n")
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := dead.Addr().String()
	dead.Close()

	found := Scan([]string{live, deadAddr}, 500*time.Millisecond)
	if len(found) != 1 {
		t.Fatalf("found %d instruments, want 1", len(found))
	}
	if found[0].Addr != live || found[0].Identity.Model != "MSO44B" {
		t.Errorf("found = %+v", found[0])
	}
}
