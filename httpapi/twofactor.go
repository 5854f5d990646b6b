package httpapi

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

type setupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          []byte   `json:"qr_code,omitempty"`
	BackupCodes     []string `json:"backup_codes"`
}

func (a *api) beginSetup(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req setupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.BeginTwoFactorSetup(r.Context(), p.UserID, req.Email)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeData(w, setupResponse{
		Secret:          res.Secret,
		ProvisioningURI: res.ProvisioningURI,
		QRCode:          res.QRCode,
		BackupCodes:     res.BackupCodes,
	})
}

func (a *api) enable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	enabled, err := a.svc.EnableTwoFactor(r.Context(), p.UserID, req.Code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, map[string]bool{"enabled": enabled})
}

func (a *api) verify(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	verified, err := a.svc.VerifyTwoFactorLogin(r.Context(), p.UserID, req.Code, goGuard.TwoFactorMethod(req.Method))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, map[string]bool{"verified": verified})
}

func (a *api) disable(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	disabled, err := a.svc.DisableTwoFactor(r.Context(), p.UserID, req.Code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, map[string]bool{"disabled": disabled})
}

type backupCodesResponse struct {
	Regenerated bool     `json:"regenerated"`
	Codes       []string `json:"codes"`
}

func (a *api) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	codes, regenerated, err := a.svc.RegenerateBackupCodes(r.Context(), p.UserID, req.Code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if codes == nil {
		codes = []string{}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeData(w, backupCodesResponse{Regenerated: regenerated, Codes: codes})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	st, err := a.svc.TwoFactorStatus(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeData(w, st)
}
