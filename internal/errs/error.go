package errs

import (
	"errors"
	"fmt"
)

var (
	ServiceTypError     = errors.New("eproxy: service type must be a first level pointer to struct")
	InvalidServiceID    = errors.New("eproxy: invalid service id")
	ReadLenDataError    = errors.New("eproxy: could not read the length data")
	ReadRespFailError   = errors.New("eproxy: unable to read response")
	ClientNotAllWritten = errors.New("eproxy: request was not completely written")
	OnewayError         = errors.New("eproxy: this is a one-way call, no response is expected")
	ErrCommandNotFound  = errors.New("eproxy: service command not found")
	ErrClusterNotFound  = errors.New("eproxy: cluster strategy not registered")
	ErrFallbackNotFound = errors.New("eproxy: fallback handler not registered")
	ErrConvert          = errors.New("eproxy: unable to convert result")
	ErrResultType       = errors.New("eproxy: recovery result has unexpected type")
	ErrNumberRange      = errors.New("eproxy: number does not fit the target type")
	ErrRateLimited      = errors.New("eproxy: rate limited")
	ErrLimiterClosed    = errors.New("eproxy: limiter closed, system is not protected")
	ErrNoInstance       = errors.New("eproxy: no service instance available")
	ErrRemote           = errors.New("eproxy: remote call failed")
	ErrUnknownStrategy  = errors.New("eproxy: unknown strategy")
	ErrInvalidConfig    = errors.New("eproxy: invalid config")
)

var (
	ProtoSerializeTypError   = errors.New("serialize: serialization must be proto Message Type or map")
	ProtoDeserializeTypError = errors.New("serialize: deserialization target must be a pointer")
	UnknownSerializer        = errors.New("serialize: unknown serializer")
	UnknownCompressor        = errors.New("compress: unknown compressor")
)

func ClientConnDeaded(err error) error {
	return fmt.Errorf("eproxy: unable to get a connection from the pool: %w", err)
}

func RemoteError(serviceID, msg string) error {
	return fmt.Errorf("%w: service %s: %s", ErrRemote, serviceID, msg)
}

func ClusterNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrClusterNotFound, name)
}

func FallbackNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrFallbackNotFound, name)
}

func CommandNotFound(serviceID string) error {
	return fmt.Errorf("%w: %s", ErrCommandNotFound, serviceID)
}

func ConvertError(from any, to string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %T to %s", ErrConvert, from, to)
	}
	return fmt.Errorf("%w: %T to %s: %v", ErrConvert, from, to, cause)
}

func ResultTypeError(got any, want string) error {
	return fmt.Errorf("%w: got %T, want %s", ErrResultType, got, want)
}

func UnknownStrategy(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
}

func InvalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

func RateLimited(serviceID string) error {
	return fmt.Errorf("%w: %s", ErrRateLimited, serviceID)
}
