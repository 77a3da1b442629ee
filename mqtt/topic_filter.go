// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "github.com/fieldedge/iotops/internal/mqtt"

// IsTopicFilterMatch checks if a topic name matches a topic filter.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	return mqtt.IsTopicFilterMatch(topicFilter, topicName)
}
