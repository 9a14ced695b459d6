package request

// ApproveRequest 用户对待审批活动的决定
type ApproveRequest struct {
	Approved    *bool  `json:"approved" binding:"required"`
	RawTx       string `json:"rawTx" binding:"omitempty,hexadecimal,excluded_with=SignedRawTx"`
	SignedRawTx string `json:"signedRawTx" binding:"omitempty,hexadecimal"`
}

// ActivityURI 活动 id 路径参数
type ActivityURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}
