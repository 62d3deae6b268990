package loads

import (
	"context"
	"crypto/sha256"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/blob"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
	"github.com/wolfeidau/loadboard/internal/telemetry"
)

// MaxSignatureBytes bounds an inline signature image.
const MaxSignatureBytes = 1 << 20

var signatureContentTypes = []string{"image/png", "image/jpeg", "image/svg+xml"}

// SignatureInput describes a captured signature. Image may be omitted when
// it was uploaded through a presigned URL beforehand.
type SignatureInput struct {
	SignerName  string           `json:"signerName" validate:"required,max=200"`
	SignedAt    time.Time        `json:"signedAt"`
	Geo         *models.GeoPoint `json:"geo,omitempty"`
	ContentType string           `json:"contentType" validate:"required,oneof=image/png image/jpeg image/svg+xml"`
	Image       []byte           `json:"image,omitempty" validate:"max=1048576"`
}

// PresignedURL is a time limited URL for a direct blob transfer.
type PresignedURL struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ContentHash is the base58 encoded SHA-256 of a signature image.
func ContentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base58.Encode(sum[:])
}

// CaptureSignature records the shipper signature of a delivered load and
// completes it. A load is signed once: the image is copied to a key owned by
// this signature, and a later capture or upload cannot replace it. If
// completion fails the signature stays, and the complete transition can be
// retried on its own.
func (s *Service) CaptureSignature(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID, in SignatureInput) (*models.Signature, *models.Load, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, nil, err
	}
	if err := apperr.Validate(in); err != nil {
		return nil, nil, err
	}
	org, err := s.activeOrg(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}

	load, err := s.readable(ctx, id, orgID, loadID, auth.ActionWrite)
	if err != nil {
		return nil, nil, err
	}
	if load.Status != models.LoadStatusDelivered {
		return nil, nil, apperr.InvalidTransition("sign", string(load.Status), string(models.LoadStatusDelivered))
	}
	if err := s.ensureUnsigned(ctx, load, "sign"); err != nil {
		return nil, nil, err
	}

	image, err := s.signatureImage(ctx, id, load, in.Image)
	if err != nil {
		return nil, nil, err
	}

	sigID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, apperr.StorageFailure("generate signature id", err)
	}
	key := keys.SignatureBlobKey(orgID, loadID, sigID)
	if err := auth.VerifyBlobKey(id, orgID, key); err != nil {
		return nil, nil, err
	}
	if err := s.blobs.Put(ctx, key, image, in.ContentType); err != nil {
		return nil, nil, apperr.StorageFailure("put signature image", err)
	}

	signedAt := in.SignedAt
	if signedAt.IsZero() {
		signedAt = s.now()
	}

	sig := &models.Signature{
		ID:          sigID,
		OrgID:       orgID,
		LoadID:      loadID,
		SignerName:  in.SignerName,
		SignedAt:    signedAt.UTC(),
		Geo:         in.Geo,
		BlobKey:     key,
		ContentType: in.ContentType,
		ContentHash: ContentHash(image),
		CapturedBy:  id.SubjectID,
	}

	if err := s.signatures.Create(ctx, sig); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// a concurrent capture won, its image lives under its own key
			log.Warn().
				Str("org_id", orgID.String()).
				Str("load_id", loadID.String()).
				Str("blob_key", key).
				Msg("signature lost capture race, image left unreferenced")
			return nil, nil, apperr.GuardFailed("sign", "signature already captured")
		}
		return nil, nil, apperr.StorageFailure("create signature", err)
	}

	if _, err := s.recorder.Append(ctx, orgID, loadID, audit.Entry{
		Type:    audit.LoadSigned,
		ActorID: id.SubjectID,
		Meta: map[string]string{
			"signerName":  sig.SignerName,
			"contentHash": sig.ContentHash,
		},
	}); err != nil {
		return nil, nil, err
	}

	telemetry.GetMetrics().SignaturesTotal.Add(ctx, 1)

	log.Info().
		Str("org_id", orgID.String()).
		Str("load_id", loadID.String()).
		Str("actor_id", id.SubjectID).
		Str("content_hash", sig.ContentHash).
		Msg("signature captured")

	t := transitions[ActionComplete]
	if _, err := s.verifySignature(ctx, load); err != nil {
		s.countRejected(ctx, t.Action, err)
		return sig, nil, err
	}
	completed, err := s.apply(ctx, id, load, t, store.Patch{}, map[string]string{"contentHash": sig.ContentHash})
	if err != nil {
		s.countRejected(ctx, t.Action, err)
		return sig, nil, err
	}

	s.notifyCompleted(ctx, org, completed)

	return sig, completed, nil
}

// GetSignature returns the signature of a load the caller may read.
func (s *Service) GetSignature(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID) (*models.Signature, error) {
	if _, err := s.Get(ctx, id, orgID, loadID); err != nil {
		return nil, err
	}
	sig, err := s.signatures.Get(ctx, keys.Signature(orgID, loadID))
	if err != nil {
		return nil, apperr.FromStore("signature", "get signature", err)
	}
	return sig, nil
}

// SignatureUploadURL presigns a direct upload of the signature image for an
// unsigned load that is in transit or delivered.
func (s *Service) SignatureUploadURL(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID, contentType string) (*PresignedURL, error) {
	if err := auth.Authorize(id, orgID, auth.Members...); err != nil {
		return nil, err
	}
	if !slices.Contains(signatureContentTypes, contentType) {
		return nil, apperr.ValidationFailed("invalid input",
			map[string]string{"contentType": "must be one of: image/png image/jpeg image/svg+xml"})
	}

	load, err := s.readable(ctx, id, orgID, loadID, auth.ActionWrite)
	if err != nil {
		return nil, err
	}
	if load.Status != models.LoadStatusInTransit && load.Status != models.LoadStatusDelivered {
		return nil, apperr.InvalidTransition("upload signature for", string(load.Status),
			string(models.LoadStatusInTransit), string(models.LoadStatusDelivered))
	}

	if err := s.ensureUnsigned(ctx, load, "upload signature for"); err != nil {
		return nil, err
	}

	key := keys.SignatureUploadKey(orgID, loadID)
	if err := auth.VerifyBlobKey(id, orgID, key); err != nil {
		return nil, err
	}

	url, err := s.blobs.PresignUpload(ctx, key, contentType, s.presignTTL)
	if err != nil {
		return nil, apperr.StorageFailure("presign signature upload", err)
	}
	return &PresignedURL{URL: url, Key: key, ExpiresAt: s.now().Add(s.presignTTL)}, nil
}

// SignatureDownloadURL presigns a download of a captured signature image.
func (s *Service) SignatureDownloadURL(ctx context.Context, id *auth.Identity, orgID, loadID uuid.UUID) (*PresignedURL, error) {
	sig, err := s.GetSignature(ctx, id, orgID, loadID)
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyBlobKey(id, orgID, sig.BlobKey); err != nil {
		return nil, err
	}

	url, err := s.blobs.PresignDownload(ctx, sig.BlobKey, s.presignTTL)
	if err != nil {
		return nil, apperr.StorageFailure("presign signature download", err)
	}
	return &PresignedURL{URL: url, Key: sig.BlobKey, ExpiresAt: s.now().Add(s.presignTTL)}, nil
}

// ensureUnsigned refuses action once a signature has been captured.
func (s *Service) ensureUnsigned(ctx context.Context, load *models.Load, action string) error {
	_, err := s.signatures.Get(ctx, keys.Signature(load.OrgID, load.ID))
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return apperr.StorageFailure("get signature", err)
	}
	return apperr.GuardFailed(action, "signature already captured")
}

// signatureImage returns the inline image, or the one uploaded through a
// presigned URL when none was sent.
func (s *Service) signatureImage(ctx context.Context, id *auth.Identity, load *models.Load, inline []byte) ([]byte, error) {
	if len(inline) > 0 {
		return inline, nil
	}

	key := keys.SignatureUploadKey(load.OrgID, load.ID)
	if err := auth.VerifyBlobKey(id, load.OrgID, key); err != nil {
		return nil, err
	}
	obj, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apperr.ValidationFailed("signature image required",
			map[string]string{"image": "is required unless uploaded through the upload URL"})
	}
	if err != nil {
		return nil, apperr.StorageFailure("get signature image", err)
	}
	return obj.Body, nil
}

// verifySignature re-reads the stored image and checks it against the
// recorded content hash.
func (s *Service) verifySignature(ctx context.Context, load *models.Load) (*models.Signature, error) {
	sig, err := s.signatures.Get(ctx, keys.Signature(load.OrgID, load.ID))
	if store.IsNotFound(err) {
		return nil, apperr.GuardFailed(string(ActionComplete), "no signature captured")
	}
	if err != nil {
		return nil, apperr.StorageFailure("get signature", err)
	}

	obj, err := s.blobs.Get(ctx, sig.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apperr.GuardFailed(string(ActionComplete), "signature image missing")
	}
	if err != nil {
		return nil, apperr.StorageFailure("get signature image", err)
	}

	if ContentHash(obj.Body) != sig.ContentHash {
		log.Warn().
			Str("org_id", load.OrgID.String()).
			Str("load_id", load.ID.String()).
			Msg("signature content hash mismatch")
		return nil, apperr.GuardFailed(string(ActionComplete), "signature content hash mismatch")
	}
	return sig, nil
}
