// pkg/registry/schema.go
package registry

// FormRegistry lists the submission kinds the relay accepts.
type FormRegistry struct {
	Version     string `json:"version"`
	LastUpdated string `json:"lastUpdated"`
	Forms       []Form `json:"forms"`
}

type Form struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"displayName"`
	Route       string `json:"route"`
	// SuccessOnDeliveryFailure is the success flag returned when the
	// submission was saved but the mail could not be sent.
	SuccessOnDeliveryFailure bool                   `json:"successOnDeliveryFailure"`
	DeliveryFailedMessage    string                 `json:"deliveryFailedMessage"`
	Schema                   map[string]interface{} `json:"schema"`
	Tags                     []string               `json:"tags"`
}
