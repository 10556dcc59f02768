package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"goji.io"

	"github.com/oscillab/golascope/comm"
	"github.com/oscillab/golascope/discovery"
	"github.com/oscillab/golascope/generichttp/tmc"
	"github.com/oscillab/golascope/server"
	"github.com/oscillab/golascope/server/middleware/locker"
	"github.com/oscillab/golascope/tektronix"
	"github.com/oscillab/golascope/usbtmc"
)

// ObjSetup holds the arguments for one instrument node.
type ObjSetup struct {
	// Addr holds the network or filesystem address of the remote device,
	// e.g. 192.168.100.123:4000, or /dev/ttyUSB0 for a serial device
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the URL stem the routes from this device are served on,
	// ex. Endpoint="/lab/scope" produces routes of /lab/scope/trigger, etc.
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Serial selects RS232 over TCP
	Serial bool `yaml:"Serial" koanf:"Serial"`

	// USB holds "vid:pid" in hex for a USBTMC device; it takes precedence
	// over Addr
	USB string `yaml:"USB" koanf:"USB"`

	// Type is the instrument type, e.g. mso44b
	Type string `yaml:"Type" koanf:"Type"`
}

// Config holds the initialization parameters for the served instruments.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Nodes is the list of instruments to set up
	Nodes []ObjSetup `yaml:"Nodes" koanf:"Nodes"`
}

// parseUSBAddr splits "0699:0527" into its vendor and product IDs.
func parseUSBAddr(s string) (uint16, uint16, error) {
	pieces := strings.Split(s, ":")
	if len(pieces) != 2 {
		return 0, 0, fmt.Errorf("USB address %q is not of the form vid:pid", s)
	}
	vid, err := strconv.ParseUint(pieces[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad vendor ID %q: %w", pieces[0], err)
	}
	pid, err := strconv.ParseUint(pieces[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad product ID %q: %w", pieces[1], err)
	}
	return uint16(vid), uint16(pid), nil
}

func scopeForNode(node ObjSetup) (*tektronix.Scope, error) {
	if node.USB != "" {
		vid, pid, err := parseUSBAddr(node.USB)
		if err != nil {
			return nil, err
		}
		pool := comm.NewPool(1, comm.DefaultIdleTime, usbtmc.ConnMaker(vid, pid))
		return tektronix.NewScopeFromPool(pool), nil
	}
	if node.Serial {
		return tektronix.NewScopeSerial(node.Addr), nil
	}
	return tektronix.NewScope(node.Addr), nil
}

func fgForNode(node ObjSetup) (*tektronix.FunctionGenerator, error) {
	if node.USB != "" {
		vid, pid, err := parseUSBAddr(node.USB)
		if err != nil {
			return nil, err
		}
		pool := comm.NewPool(1, comm.DefaultIdleTime, usbtmc.ConnMaker(vid, pid))
		return tektronix.NewFunctionGeneratorFromPool(pool), nil
	}
	return tektronix.NewFunctionGenerator(node.Addr), nil
}

// BuildMux constructs the root router from the config: one submux per
// instrument node, each with its own lock, and an /endpoints route listing
// everything served.
func BuildMux(c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	for _, node := range c.Nodes {
		var httper server.HTTPer
		typ := strings.ToLower(node.Type)
		switch typ {
		case "mso44b", "scope":
			scope, err := scopeForNode(node)
			if err != nil {
				log.Fatal("node ", node.Endpoint, ": ", err)
			}
			httper = tmc.NewHTTPOscilloscope(scope)

		case "afg31000", "function-generator":
			fg, err := fgForNode(node)
			if err != nil {
				log.Fatal("node ", node.Endpoint, ": ", err)
			}
			httper = tmc.NewHTTPFunctionGenerator(fg)

		default:
			log.Fatal("type ", typ, " not understood")
		}

		lock := locker.New()
		locker.Inject(httper, lock)

		stem := strings.TrimSuffix(server.SubMuxSanitize(node.Endpoint), "/*")
		supergraph[stem] = httper.RT().Endpoints()

		m := goji.NewMux()
		m.Use(lock.Check)
		httper.RT().Bind(m)
		root.Mount(stem, http.StripPrefix(stem, m))
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	root.Get("/discover", discoverHandler)
	root.Get("/discover-usb", discoverUSBHandler)
	return root
}

// discoverHandler probes a comma separated list of addresses for SCPI
// instruments, e.g. /discover?addrs=10.0.0.5:4000,10.0.0.6:4000
func discoverHandler(w http.ResponseWriter, r *http.Request) {
	addrsParam := r.URL.Query().Get("addrs")
	if addrsParam == "" {
		http.Error(w, "addrs query parameter is required", http.StatusBadRequest)
		return
	}
	timeout := 2 * time.Second
	if s := r.URL.Query().Get("timeoutMS"); s != "" {
		ms, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, fmt.Sprintf("timeoutMS %q is not a number", s), http.StatusBadRequest)
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	found := discovery.Scan(strings.Split(addrsParam, ","), timeout)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(found)
}

func discoverUSBHandler(w http.ResponseWriter, r *http.Request) {
	found, err := discovery.ScanUSB()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(found)
}
