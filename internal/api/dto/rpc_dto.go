package dto

// RPCFieldResponse describes one typed input of a method.
type RPCFieldResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// RPCMethodResponse is one method the caller may invoke.
type RPCMethodResponse struct {
	Method      string             `json:"method"`
	Description string             `json:"description"`
	Tier        string             `json:"tier"`
	Fields      []RPCFieldResponse `json:"fields"`
}
