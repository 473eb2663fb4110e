package codec

import "github.com/avsej/gocbcore-lite/corecore"

// ToCoreKind maps a normalized wire status to the closed error taxonomy a
// caller sees (spec.md §7 table). isInsert distinguishes StatusExists on an
// insert-class op (DocumentExists) from StatusExists on a CAS-bearing op
// (CasMismatch), since the wire status is identical in both cases.
func ToCoreKind(status Status, isInsert bool) corecore.Kind {
	switch status {
	case StatusSuccess:
		return corecore.KindUnknown
	case StatusNotFound:
		return corecore.KindDocumentNotFound
	case StatusExists:
		if isInsert {
			return corecore.KindDocumentExists
		}
		return corecore.KindCasMismatch
	case StatusTooBig:
		return corecore.KindValueTooLarge
	case StatusSyncWriteAmbiguous:
		return corecore.KindDurabilityAmbiguous
	case StatusAuthError:
		return corecore.KindAuthenticationFailure
	case StatusNoBucket:
		return corecore.KindBucketNotFound
	case StatusTemporaryFailure, StatusLocked:
		return corecore.KindTemporaryFailure
	case StatusSubdocPathNotFound, StatusSubdocPathMismatch, StatusSubdocPathInvalid,
		StatusSubdocPathExists, StatusSubdocDocNotJSON, StatusSubdocDocTooDeep,
		StatusSubdocValueCantInsert, StatusSubdocValueTooDeep, StatusSubdocMultiPathFailure,
		StatusSubdocInvalidCombo:
		return corecore.KindSubDocument
	default:
		return corecore.KindUnknown
	}
}
