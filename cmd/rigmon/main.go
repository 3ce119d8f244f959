package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"os"

	"github.com/sigrigs/sigrig.go/pkg/mesh"
	"github.com/sigrigs/sigrig.go/pkg/mesh/mqtt"
	"github.com/sigrigs/sigrig.go/pkg/wire"
)

var (
	mqttURL = "mqtt://localhost:1883/sigrig"
)

func init() {
	if val := os.Getenv("SIGRIG_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("mesh/#", mqtt.Handler(func(topic string, frame []byte) {
		from, payload, err := mqtt.SplitFrame(frame)
		if err != nil {
			log.Printf("%s: %v", topic, err)
			return
		}
		pkt, err := wire.Decode(payload)
		if err != nil {
			log.Printf("%s: %s: bad packet (%d bytes): %v", topic, from, len(payload), err)
			return
		}
		logPacket(topic, from, pkt)
	}))
	<-(chan struct{})(nil)
}

func logPacket(topic string, from mesh.Addr, pkt wire.Packet) {
	switch p := pkt.(type) {
	case *wire.Telemetry:
		log.Printf("%s: %s: telemetry dev=%d seq=%d t=%dms v=%v",
			topic, from, p.DeviceID, p.Seq, p.CaptureMillis, p.Values)
	case *wire.Command:
		log.Printf("%s: %s: command %c dev=%d", topic, from, p.Kind, p.DeviceID)
	case *wire.Ack:
		log.Printf("%s: %s: ack dev=%d status=%d", topic, from, p.DeviceID, p.Status)
	case *wire.Actuator:
		log.Printf("%s: %s: actuator %c data=%v", topic, from, p.Kind, p.Data)
	}
}
