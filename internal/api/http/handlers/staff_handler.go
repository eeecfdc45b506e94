package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/botlist/arcadia/internal/api/dto"
	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/service"
	apperrors "github.com/botlist/arcadia/pkg/util/errorutil"
)

// StaffHandler exposes position, member and disciplinary administration.
type StaffHandler struct {
	admin *service.StaffAdminService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(adminService *service.StaffAdminService) *StaffHandler {
	return &StaffHandler{admin: adminService}
}

// ListPositions handles GET /staff/positions.
func (h *StaffHandler) ListPositions(c *fiber.Ctx) error {
	positions, err := h.admin.ListPositions(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.PositionResponse, 0, len(positions))
	for i := range positions {
		resp = append(resp, positionResponse(&positions[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// CreatePosition handles POST /staff/positions.
func (h *StaffHandler) CreatePosition(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PositionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" || req.RoleID == "" {
		return apperrors.NewValidationError("name and role_id required", nil)
	}
	pos, err := h.admin.CreatePosition(c.UserContext(), principal.UserID, service.PositionInput{
		Name:               req.Name,
		RoleID:             req.RoleID,
		Index:              req.Index,
		Perms:              req.Perms,
		CorrespondingRoles: toDomainRoles(req.CorrespondingRoles),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": positionResponse(pos)})
}

// EditPosition handles PATCH /staff/positions/:id.
func (h *StaffHandler) EditPosition(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PositionPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	patch := service.PositionPatch{Name: req.Name, RoleID: req.RoleID, Perms: req.Perms}
	if req.CorrespondingRoles != nil {
		roles := toDomainRoles(*req.CorrespondingRoles)
		patch.CorrespondingRoles = &roles
	}
	pos, err := h.admin.EditPosition(c.UserContext(), principal.UserID, c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": positionResponse(pos)})
}

// DeletePosition handles DELETE /staff/positions/:id.
func (h *StaffHandler) DeletePosition(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.admin.DeletePosition(c.UserContext(), principal.UserID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListMembers handles GET /staff/members.
func (h *StaffHandler) ListMembers(c *fiber.Ctx) error {
	members, err := h.admin.ListMembers(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.MemberResponse, 0, len(members))
	for i := range members {
		resp = append(resp, memberResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// EditMember handles PATCH /staff/members/:user_id.
func (h *StaffHandler) EditMember(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.MemberPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	member, err := h.admin.EditMember(c.UserContext(), principal.UserID, c.Params("user_id"), service.MemberPatch{
		PositionIDs:   req.PositionIDs,
		PermOverrides: req.PermOverrides,
		NoAutosync:    req.NoAutosync,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memberResponse(member)})
}

// ListDisciplinaryTypes handles GET /staff/disciplinary-types.
func (h *StaffHandler) ListDisciplinaryTypes(c *fiber.Ctx) error {
	types, err := h.admin.ListDisciplinaryTypes(c.UserContext())
	if err != nil {
		return err
	}
	resp := make([]dto.DisciplinaryTypeResponse, 0, len(types))
	for i := range types {
		resp = append(resp, disciplinaryTypeResponse(&types[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// CreateDisciplinaryType handles POST /staff/disciplinary-types.
func (h *StaffHandler) CreateDisciplinaryType(c *fiber.Ctx) error {
	principal, in, err := h.disciplinaryTypeInput(c)
	if err != nil {
		return err
	}
	t, err := h.admin.CreateDisciplinaryType(c.UserContext(), principal, in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": disciplinaryTypeResponse(t)})
}

// EditDisciplinaryType handles PUT /staff/disciplinary-types/:id.
func (h *StaffHandler) EditDisciplinaryType(c *fiber.Ctx) error {
	principal, in, err := h.disciplinaryTypeInput(c)
	if err != nil {
		return err
	}
	t, err := h.admin.EditDisciplinaryType(c.UserContext(), principal, c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disciplinaryTypeResponse(t)})
}

func (h *StaffHandler) disciplinaryTypeInput(c *fiber.Ctx) (string, service.DisciplinaryTypeInput, error) {
	principal, err := staffPrincipal(c)
	if err != nil {
		return "", service.DisciplinaryTypeInput{}, err
	}
	var req dto.DisciplinaryTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return "", service.DisciplinaryTypeInput{}, apperrors.NewValidationError("invalid payload", nil)
	}
	return principal.UserID, service.DisciplinaryTypeInput{
		Name:           req.Name,
		Description:    req.Description,
		PermLimits:     req.PermLimits,
		Additory:       req.Additory,
		SelfAssignable: req.SelfAssignable,
		NeedsApproval:  req.NeedsApproval,
		MaxExpiry:      time.Duration(req.MaxExpirySeconds) * time.Second,
	}, nil
}

// MyDisciplinaries handles GET /staff/disciplinaries/me.
func (h *StaffHandler) MyDisciplinaries(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	return h.listDisciplinaries(c, principal.UserID)
}

// ListDisciplinaries handles GET /staff/disciplinaries/:user_id.
func (h *StaffHandler) ListDisciplinaries(c *fiber.Ctx) error {
	return h.listDisciplinaries(c, c.Params("user_id"))
}

func (h *StaffHandler) listDisciplinaries(c *fiber.Ctx, userID string) error {
	entries, err := h.admin.ListDisciplinaries(c.UserContext(), userID)
	if err != nil {
		return err
	}
	resp := make([]dto.DisciplinaryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, disciplinaryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// IssueDisciplinary handles POST /staff/disciplinaries.
func (h *StaffHandler) IssueDisciplinary(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.IssueDisciplinaryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.UserID == "" || req.TypeID == "" {
		return apperrors.NewValidationError("user_id and type_id required", nil)
	}
	d, err := h.admin.IssueDisciplinary(c.UserContext(), principal.UserID, service.IssueInput{
		UserID: req.UserID,
		TypeID: req.TypeID,
		Reason: req.Reason,
		Expiry: time.Duration(req.ExpirySeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": disciplinaryResponse(d)})
}

// ApproveDisciplinary handles POST /staff/disciplinaries/:id/approve.
func (h *StaffHandler) ApproveDisciplinary(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	d, err := h.admin.ApproveDisciplinary(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disciplinaryResponse(d)})
}

// RevokeDisciplinary handles POST /staff/disciplinaries/:id/revoke.
func (h *StaffHandler) RevokeDisciplinary(c *fiber.Ctx) error {
	principal, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	d, err := h.admin.RevokeDisciplinary(c.UserContext(), principal.UserID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": disciplinaryResponse(d)})
}

func toDomainRoles(in []dto.CorrespondingRole) []domain.CorrespondingRole {
	out := make([]domain.CorrespondingRole, 0, len(in))
	for _, r := range in {
		out = append(out, domain.CorrespondingRole{GuildID: r.GuildID, RoleID: r.RoleID})
	}
	return out
}

func positionResponse(p *domain.StaffPosition) dto.PositionResponse {
	roles := make([]dto.CorrespondingRole, 0, len(p.CorrespondingRoles))
	for _, r := range p.CorrespondingRoles {
		roles = append(roles, dto.CorrespondingRole{GuildID: r.GuildID, RoleID: r.RoleID})
	}
	return dto.PositionResponse{
		ID:                 p.ID,
		Name:               p.Name,
		RoleID:             p.RoleID,
		Index:              p.Index,
		Perms:              p.Perms,
		CorrespondingRoles: roles,
		CreatedAt:          p.CreatedAt,
	}
}

func memberResponse(m *domain.StaffMember) dto.MemberResponse {
	return dto.MemberResponse{
		UserID:        m.UserID,
		PositionIDs:   m.PositionIDs,
		PermOverrides: m.PermOverrides,
		NoAutosync:    m.NoAutosync,
		Unaccounted:   m.Unaccounted,
		MFAVerified:   m.MFAVerified,
		CreatedAt:     m.CreatedAt,
	}
}

func disciplinaryTypeResponse(t *domain.StaffDisciplinaryType) dto.DisciplinaryTypeResponse {
	return dto.DisciplinaryTypeResponse{
		ID:               t.ID,
		Name:             t.Name,
		Description:      t.Description,
		PermLimits:       t.PermLimits,
		Additory:         t.Additory,
		SelfAssignable:   t.SelfAssignable,
		NeedsApproval:    t.NeedsApproval,
		MaxExpirySeconds: int64(t.MaxExpiry / time.Second),
		CreatedAt:        t.CreatedAt,
	}
}

func disciplinaryResponse(d *domain.StaffDisciplinary) dto.DisciplinaryResponse {
	return dto.DisciplinaryResponse{
		ID:            d.ID,
		UserID:        d.UserID,
		Type:          d.Type,
		Reason:        d.Reason,
		IssuedBy:      d.IssuedBy,
		ApprovedBy:    d.ApprovedBy,
		CreatedAt:     d.CreatedAt,
		ExpirySeconds: int64(d.Expiry / time.Second),
	}
}
