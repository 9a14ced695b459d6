package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"wallet-signer/internal/handler/request"
	"wallet-signer/internal/handler/response"
	"wallet-signer/internal/model"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/validator"
	"wallet-signer/pkg/wallet/types"
)

type (
	StatusReader interface {
		Status() types.WalletStatus
	}
	ApprovalLister interface {
		List() []*types.Activity
	}
	ApprovalProcessor interface {
		Process(ctx context.Context, id string, result types.ApprovalResult) error
	}
	ActivityReader interface {
		Get(ctx context.Context, id string) (model.Activity, error)
		List(ctx context.Context) ([]model.Activity, error)
	}
)

// ApprovalHandler 本地运维接口: 钱包状态, 待审批列表与审批
type ApprovalHandler struct {
	status     StatusReader
	approvals  ApprovalLister
	processor  ApprovalProcessor
	activities ActivityReader
}

func NewApprovalHandler(status StatusReader, approvals ApprovalLister, processor ApprovalProcessor, activities ActivityReader) *ApprovalHandler {
	return &ApprovalHandler{
		status:     status,
		approvals:  approvals,
		processor:  processor,
		activities: activities,
	}
}

// Status 钱包状态
// @Summary 钱包状态
// @Description 返回钱包是否已初始化以及锁定状态
// @Tags Wallet
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/status [get]
func (h *ApprovalHandler) Status(c *gin.Context) {
	response.Success(c, h.status.Status())
}

// ListApprovals 待审批活动
// @Summary 待审批活动列表
// @Description 按提交顺序返回所有待审批的活动
// @Tags Approval
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/approvals [get]
func (h *ApprovalHandler) ListApprovals(c *gin.Context) {
	response.Success(c, h.approvals.List())
}

// Approve 批准或拒绝一个待审批活动
// @Summary 审批活动
// @Description 批准时须提供 rawTx (未签名) 或 signedRawTx (已签名) 之一
// @Tags Approval
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param request body request.ApproveRequest true "Approval decision"
// @Success 200 {object} response.Response
// @Router /api/v1/approvals/{id} [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	// 1. 绑定参数
	var uri request.ActivityURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	var req request.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	// 2. 调用 Service
	result := types.ApprovalResult{
		Approved:    *req.Approved,
		RawTx:       req.RawTx,
		SignedRawTx: req.SignedRawTx,
	}
	if err := h.processor.Process(c.Request.Context(), uri.ID, result); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, nil)
}

// ListActivities 已结算的活动记录
// @Summary 活动记录
// @Tags Activity
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/activities [get]
func (h *ApprovalHandler) ListActivities(c *gin.Context) {
	list, err := h.activities.List(c.Request.Context())
	if err != nil {
		response.Error(c, errno.ErrDatabase)
		return
	}
	response.Success(c, list)
}

// GetActivity 单条活动记录
// @Summary 查询活动记录
// @Tags Activity
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Response
// @Router /api/v1/activities/{id} [get]
func (h *ApprovalHandler) GetActivity(c *gin.Context) {
	var uri request.ActivityURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	rec, err := h.activities.Get(c.Request.Context(), uri.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}
