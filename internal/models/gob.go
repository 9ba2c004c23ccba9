package models

import "encoding/gob"

// Badgerhold encodes values with gob. Job results and event payloads are
// map[string]interface{}, so every concrete type that can appear inside
// one must be registered.
func init() {
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register([]map[string]interface{}{})
	gob.Register([]string{})
	gob.Register(Measurements{})
	gob.Register(&Measurements{})
	gob.Register(GraphNode{})
	gob.Register(GraphEdge{})
	gob.Register([]GraphNode{})
	gob.Register([]GraphEdge{})
	gob.Register(map[string]int{})
	gob.Register(map[string]float64{})
}
