package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/sigrigs/sigrig.go/pkg/adc"
	"github.com/sigrigs/sigrig.go/pkg/config"
	fx "github.com/sigrigs/sigrig.go/pkg/framework"
	"github.com/sigrigs/sigrig.go/pkg/mesh/mqtt"
	"github.com/sigrigs/sigrig.go/pkg/node"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

var (
	configPath  string
	mqttURL     = "mqtt://localhost:1883/sigrig"
	localAddr   string
	coordinator string
	deviceID    int
	sampleRate  int
	channels    int
	heartRate   float64 = 72
	noise       float64
)

func init() {
	if val := os.Getenv("SIGRIG_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&configPath, "config", "", "Node config file (YAML).")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&localAddr, "addr", "", "Local mesh address; derived from machine id if empty.")
	flag.StringVar(&coordinator, "coordinator", "", "Coordinator mesh address.")
	flag.IntVar(&deviceID, "device", 0, "Device id (1-255).")
	flag.IntVar(&sampleRate, "rate", 0, "Conversion rate in Hz.")
	flag.IntVar(&channels, "channels", 0, "Channel count, 1 or 2.")
	flag.Float64Var(&heartRate, "sim-bpm", heartRate, "Simulated pulse rate in BPM.")
	flag.Float64Var(&noise, "sim-noise", 0, "Simulated noise amplitude.")
}

func loadConfig() *config.Node {
	if configPath != "" {
		cfg, err := config.LoadNode(configPath)
		if err != nil {
			glog.Exit(err)
		}
		return cfg
	}
	return &config.Node{
		DeviceID:    uint8(deviceID),
		Addr:        localAddr,
		Coordinator: coordinator,
		Broker:      mqttURL,
		SampleRate:  sampleRate,
		Channels:    channels,
	}
}

func main() {
	flag.Parse()

	cfg := loadConfig()
	if cfg.Broker == "" {
		cfg.Broker = mqttURL
	}

	addr, err := cfg.LocalAddr()
	if err != nil {
		glog.Exit(err)
	}
	nodeCfg, err := cfg.NodeConfig()
	if err != nil {
		glog.Exit(err)
	}

	transport, err := mqtt.NewTransport(cfg.Broker, addr)
	if err != nil {
		glog.Exitf("mesh connect: %v", err)
	}
	defer transport.Close()

	conv := adc.NewSim(adc.SimConfig{
		SampleRate: nodeCfg.SampleRate,
		HeartRate:  float32(heartRate),
		Noise:      float32(noise),
	})

	n, err := node.New(nodeCfg, conv, transport)
	if err != nil {
		glog.Exit(err)
	}
	n.SetActuator(func(a *wire.Actuator) {
		glog.Infof("actuator %c data=%v", a.Kind, a.Data)
	})

	glog.Infof("sensord device %d at %s, coordinator %s",
		nodeCfg.DeviceID, addr, nodeCfg.Coordinator)

	runner := fx.NewRunner().HandleSignals()
	runner.Go("node", n)
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}
