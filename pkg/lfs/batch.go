package lfs

import "context"

// Batch resolves every requested object in input order. An existing
// object always yields a download action, whatever the requested
// operation: it cannot be re-uploaded, and the canonical LFS contract
// surfaces it as downloadable. A missing object yields an upload
// action when the client is uploading, otherwise a per-object
// not-found error. Signer failures stay scoped to their object.
func Batch(ctx context.Context, meta MetaRequester, signer LinkSigner, repo string, op Operation, objects []ObjectIdentity) *BatchResponse {
	defer mon.Task()(&ctx)(nil)

	records := make([]*ObjectRecord, 0, len(objects))
	for _, object := range objects {
		result := meta.GetMetaResult(ctx, repo, object.Oid)
		records = append(records, resolveObject(ctx, signer, op, object, result))
	}
	return &BatchResponse{Transfer: "basic", Objects: records, HashAlgo: "sha256"}
}

func resolveObject(ctx context.Context, signer LinkSigner, op Operation, object ObjectIdentity, result *MetaResult) *ObjectRecord {
	record := &ObjectRecord{Oid: object.Oid, Size: object.Size}

	switch {
	case result.Exists:
		action, err := signer.GetPresignedLink(ctx, result)
		if err != nil {
			record.Error = &ObjectError{Message: err.Error()}
			return record
		}
		record.Actions = map[string]*ObjectAction{"download": action}

	case op == Upload:
		upload, verify, err := signer.PostPresignedLink(ctx, result, object.Size)
		if err != nil {
			record.Error = &ObjectError{Message: err.Error()}
			return record
		}
		record.Actions = map[string]*ObjectAction{"upload": upload}
		if verify != nil {
			record.Actions["verify"] = verify
		}

	default:
		record.Error = &ObjectError{Message: "Not found"}
	}
	return record
}
