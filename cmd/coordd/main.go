package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/golang/glog"

	"github.com/sigrigs/sigrig.go/pkg/config"
	"github.com/sigrigs/sigrig.go/pkg/coord"
	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/host"
	"github.com/sigrigs/sigrig.go/pkg/host/ws"
	"github.com/sigrigs/sigrig.go/pkg/mesh/mqtt"
)

var (
	configPath string
	mqttURL    = "mqtt://localhost:1883/sigrig"
	serialPort string
	baudRate   int
	listen     string
)

func init() {
	if val := os.Getenv("SIGRIG_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&configPath, "config", "", "Coordinator config file (YAML).")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&serialPort, "serial", "", "Serial port for the host link.")
	flag.IntVar(&baudRate, "baud", 0, "Serial baud rate.")
	flag.StringVar(&listen, "listen", "", "Websocket host-link listen address, e.g. :8181.")
}

// openHostLink prefers the serial port and falls back to a websocket
// bridge served over HTTP.
func openHostLink(cfg *config.Coord, runner *fx.Runner) (io.ReadWriter, error) {
	if cfg.SerialPort != "" {
		glog.Infof("host link on serial %s @%d", cfg.SerialPort, cfg.Baud())
		return host.OpenSerial(cfg.SerialPort, cfg.Baud())
	}
	if cfg.Listen == "" {
		return nil, errors.New("host link not configured: set serial_port or listen")
	}

	bridge := ws.NewBridge()
	mux := http.NewServeMux()
	mux.Handle("/host", bridge.Handler())
	srv := &http.Server{Addr: cfg.Listen, Handler: mux}
	runner.Go("http", fx.RunnableFunc(func(ctx context.Context) error {
		return fx.RunWithContext(ctx, func() { srv.Close() }, func() error {
			glog.Infof("host link on ws://%s/host", cfg.Listen)
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}))
	return bridge, nil
}

func main() {
	flag.Parse()

	if configPath == "" {
		glog.Exit("a coordinator config file is required (-config)")
	}
	cfg, err := config.LoadCoord(configPath)
	if err != nil {
		glog.Exit(err)
	}
	if cfg.Broker == "" {
		cfg.Broker = mqttURL
	}
	if serialPort != "" {
		cfg.SerialPort = serialPort
	}
	if baudRate > 0 {
		cfg.BaudRate = baudRate
	}
	if listen != "" {
		cfg.Listen = listen
	}

	addr, err := cfg.LocalAddr()
	if err != nil {
		glog.Exit(err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		glog.Exit(err)
	}
	if registry.Len() == 0 {
		glog.Warning("no peers configured; commands will fan out to nobody")
	}

	transport, err := mqtt.NewTransport(cfg.Broker, addr)
	if err != nil {
		glog.Exitf("mesh connect: %v", err)
	}
	defer transport.Close()

	runner := fx.NewRunner().HandleSignals()
	hostLink, err := openHostLink(cfg, runner)
	if err != nil {
		glog.Exit(err)
	}

	c := coord.New(transport, registry, hostLink, cfg.Options())
	glog.Infof("coordd at %s, %d peers", addr, registry.Len())
	runner.Go("coordinator", c)
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
