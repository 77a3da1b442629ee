package protocol

import (
	"sync"

	"github.com/fieldedge/iotops/internal/mqtt"
)

// dispatchers caches one managed mqtt.Client per underlying MqttClient, so
// that a command invoker, command executor, and telemetry receiver built on
// the same connection share a single set of filter subscriptions instead of
// each subscribing independently.
var dispatchers sync.Map // MqttClient -> *mqtt.Client

// dispatcherFor returns the managed, topic-filtered dispatcher for client,
// creating one on first use.
func dispatcherFor(client MqttClient) *mqtt.Client {
	if v, ok := dispatchers.Load(client); ok {
		return v.(*mqtt.Client) //nolint:forcetypeassert // only this func stores into the map
	}
	actual, _ := dispatchers.LoadOrStore(client, mqtt.NewClient(client))
	return actual.(*mqtt.Client) //nolint:forcetypeassert // only this func stores into the map
}
