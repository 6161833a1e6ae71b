package dto

// SendVerificationCodeRequest is the relay contract for issuing a code. Field names are
// shared with existing clients.
type SendVerificationCodeRequest struct {
	StudentEmail string `json:"studentEmail" validate:"required,email"`
	StudentName  string `json:"studentName" validate:"required,min=1,max=255"`
}

// SendVerificationCodeResponse is returned by the relay. IdentityID is serialized under
// its historical key.
type SendVerificationCodeResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	VerificationCode string `json:"verificationCode,omitempty"`
	IdentityID       string `json:"firebaseUid,omitempty"`
}

// RelayUploadResponse describes an image pushed to Cloudinary.
type RelayUploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	URL      string `json:"url,omitempty"`
	PublicID string `json:"publicId,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RelayStatusResponse reports which optional relay integrations are configured.
type RelayStatusResponse struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	IdentityProvisioning bool   `json:"identityProvisioning"`
	MailProvider         string `json:"mailProvider"`
	Uploads              bool   `json:"uploads"`
}
