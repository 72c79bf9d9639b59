package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/gpionode/pkg/registry"
	"github.com/robotalks/gpionode/pkg/registry/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/"
)

func init() {
	if val := os.Getenv("GPIONODE_MQTT_URL"); val != "" {
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
	q.Sub(registry.TopicRoot+"/#", mqtt.Handler(func(topic string, payload []byte) {
		switch {
		case strings.HasSuffix(topic, "/meta"):
			if len(payload) == 0 {
				log.Printf("%s: offline", topic)
				return
			}
			log.Printf("%s: %s", topic, string(payload))
		case strings.HasSuffix(topic, "/status"):
			st, err := registry.DecodeStatus(payload)
			if err != nil {
				log.Printf("%s: bad status: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, st.String())
		default:
			log.Printf("%s: %d bytes", topic, len(payload))
		}
	}))
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
