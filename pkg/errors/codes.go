package errors

import (
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeBadRequest      ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_005"
	ErrCodeConflict        ErrorCode = "COMMON_006"
	ErrCodeTimeout         ErrorCode = "COMMON_009"
	ErrCodeValidation      ErrorCode = "COMMON_010"
	ErrCodeSerialization   ErrorCode = "COMMON_011"
	ErrCodeCacheError      ErrorCode = "COMMON_013"
	ErrCodeExternalService ErrorCode = "COMMON_014"
	ErrCodeCancelled       ErrorCode = "COMMON_017"
)

// Aliases used by call sites that predate the module prefixes.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")

	CodeMoleculeInvalidSMILES = ErrCodeMoleculeInvalidSMILES
)

// Molecule Module Error Codes
const (
	ErrCodeMoleculeInvalidSMILES   ErrorCode = "MOL_001"
	ErrCodeMoleculeParsingFailed   ErrorCode = "MOL_006"
	ErrCodeValenceViolation        ErrorCode = "MOL_012"
	ErrCodeDescriptorFailed        ErrorCode = "MOL_013"
	ErrCodeInvalidPotency          ErrorCode = "MOL_016"
	ErrCodeSequenceEncodingInvalid ErrorCode = "MOL_017"
)

// AI/ML Module Error Codes
const (
	ErrCodeAIModelNotAvailable    ErrorCode = "AI_001"
	ErrCodeAIInferenceFailed      ErrorCode = "AI_002"
	ErrCodeAIModelVersionMismatch ErrorCode = "AI_003"
	ErrCodeAIInputInvalid         ErrorCode = "AI_004"
	ErrCodeAIResourceExhausted    ErrorCode = "AI_005"
	ErrCodeScalerNotFitted        ErrorCode = "AI_006"
	ErrCodeScalerAlreadyFitted    ErrorCode = "AI_007"
	ErrCodeModelNotTrained        ErrorCode = "AI_008"
	ErrCodeModelNotCompiled       ErrorCode = "AI_009"
	ErrCodeCheckpointFailed       ErrorCode = "AI_010"
	ErrCodeTrainingFailed         ErrorCode = "AI_011"
	ErrCodeShapeMismatch          ErrorCode = "AI_012"
)

// Dataset Error Codes
const (
	ErrCodeDatasetReadFailed  ErrorCode = "DATA_001"
	ErrCodeDatasetMalformed   ErrorCode = "DATA_002"
	ErrCodeVoxelFormat        ErrorCode = "DATA_003"
	ErrCodeDatasetMisaligned  ErrorCode = "DATA_004"
	ErrCodeSubmissionFailed   ErrorCode = "DATA_005"
	ErrCodeArtifactPublishing ErrorCode = "DATA_006"
)

// ErrorCodeExitCode maps ErrorCodes to process exit codes used by the CLI.
// Input problems exit with 2, everything else with 1.
var ErrorCodeExitCode = map[ErrorCode]int{
	ErrCodeBadRequest:              2,
	ErrCodeValidation:              2,
	ErrCodeMoleculeInvalidSMILES:   2,
	ErrCodeMoleculeParsingFailed:   2,
	ErrCodeValenceViolation:        2,
	ErrCodeInvalidPotency:          2,
	ErrCodeSequenceEncodingInvalid: 2,
	ErrCodeDatasetReadFailed:       2,
	ErrCodeDatasetMalformed:        2,
	ErrCodeVoxelFormat:             2,
	ErrCodeDatasetMisaligned:       2,
	ErrCodeCancelled:               130,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeBadRequest:      "bad request",
	ErrCodeNotFound:        "resource not found",
	ErrCodeConflict:        "resource conflict",
	ErrCodeTimeout:         "operation timeout",
	ErrCodeValidation:      "validation failed",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeCacheError:      "cache error",
	ErrCodeExternalService: "external service error",
	ErrCodeCancelled:       "operation cancelled",

	ErrCodeMoleculeInvalidSMILES:   "invalid SMILES format",
	ErrCodeMoleculeParsingFailed:   "failed to parse molecule",
	ErrCodeValenceViolation:        "atom valence exceeded",
	ErrCodeDescriptorFailed:        "descriptor calculation failed",
	ErrCodeInvalidPotency:          "potency must be a positive finite concentration",
	ErrCodeSequenceEncodingInvalid: "invalid sequence encoding",

	ErrCodeAIModelNotAvailable:    "AI model not available",
	ErrCodeAIInferenceFailed:      "AI inference failed",
	ErrCodeAIModelVersionMismatch: "AI model version mismatch",
	ErrCodeAIInputInvalid:         "invalid input for AI model",
	ErrCodeAIResourceExhausted:    "AI calculation resource exhausted",
	ErrCodeScalerNotFitted:        "normalizer used before fit",
	ErrCodeScalerAlreadyFitted:    "normalizer already fitted",
	ErrCodeModelNotTrained:        "model has not been trained",
	ErrCodeModelNotCompiled:       "model has not been compiled",
	ErrCodeCheckpointFailed:       "checkpoint persistence failed",
	ErrCodeTrainingFailed:         "training failed",
	ErrCodeShapeMismatch:          "tensor shape mismatch",

	ErrCodeDatasetReadFailed:  "failed to read dataset",
	ErrCodeDatasetMalformed:   "malformed dataset",
	ErrCodeVoxelFormat:        "unsupported voxel array",
	ErrCodeDatasetMisaligned:  "dataset modalities are misaligned",
	ErrCodeSubmissionFailed:   "failed to write submission",
	ErrCodeArtifactPublishing: "failed to publish artifacts",
}

// ExitCodeForCode returns the process exit code for an ErrorCode.
func ExitCodeForCode(code ErrorCode) int {
	if exit, ok := ErrorCodeExitCode[code]; ok {
		return exit
	}
	return 1
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsInputError reports whether the code blames the caller's input rather
// than the process.
func IsInputError(code ErrorCode) bool {
	return ExitCodeForCode(code) == 2
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
