package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/botlist/arcadia/internal/api/dto"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// RPCHandler exposes the staff RPC surface to the panel.
type RPCHandler struct {
	rpc *service.RPCService
}

// NewRPCHandler constructs handler.
func NewRPCHandler(rpcService *service.RPCService) *RPCHandler {
	return &RPCHandler{rpc: rpcService}
}

// ListMethods handles GET /rpc/methods.
func (h *RPCHandler) ListMethods(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	methods, err := h.rpc.Allowed(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	resp := make([]dto.RPCMethodResponse, 0, len(methods))
	for _, m := range methods {
		resp = append(resp, rpcMethodResponse(m))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Invoke handles POST /rpc/:method. The body is the method's field map.
func (h *RPCHandler) Invoke(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	raw := map[string]any{}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &raw); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	result, err := h.rpc.Invoke(c.UserContext(), principal.UserID, c.Params("method"), raw)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

func rpcMethodResponse(m service.RPCMethod) dto.RPCMethodResponse {
	fields := make([]dto.RPCFieldResponse, 0, len(m.Fields))
	for _, f := range m.Fields {
		fields = append(fields, dto.RPCFieldResponse{ID: f.ID, Label: f.Label, Kind: string(f.Kind)})
	}
	return dto.RPCMethodResponse{
		Method:      m.Name,
		Description: m.Description,
		Tier:        m.Tier.String(),
		Fields:      fields,
	}
}
