package pulsarutils

import (
	"strings"

	"github.com/apache/pulsar-client-go/pulsar"
	pulsarlog "github.com/apache/pulsar-client-go/pulsar/log"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/phonehome/internal/common/armadaerrors"
	commonconfig "github.com/G-Research/phonehome/internal/common/config"
)

func NewPulsarClient(config *commonconfig.PulsarConfig) (pulsar.Client, error) {
	var authentication pulsar.Authentication

	if config.AuthenticationEnabled {
		jwtPath, err := getTokenPath(config)
		if err != nil {
			return nil, err
		}
		authentication = pulsar.NewAuthenticationTokenFromFile(jwtPath)
	}

	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:                        config.URL,
		TLSTrustCertsFilePath:      config.TLSTrustCertsFilePath,
		TLSValidateHostname:        config.TLSValidateHostname,
		TLSAllowInsecureConnection: config.TLSAllowInsecureConnection,
		MaxConnectionsPerBroker:    config.MaxConnectionsPerBroker,
		Authentication:             authentication,
		Logger:                     pulsarlog.NewLoggerWithLogrus(log.StandardLogger()),
	})
	return client, errors.WithStack(err)
}

// NewProducerOptions converts config into the options for a producer on the configured topic.
func NewProducerOptions(config *commonconfig.PulsarConfig, name string) (pulsar.ProducerOptions, error) {
	compressionType, err := ParsePulsarCompressionType(config.CompressionType)
	if err != nil {
		return pulsar.ProducerOptions{}, err
	}
	compressionLevel, err := ParsePulsarCompressionLevel(config.CompressionLevel)
	if err != nil {
		return pulsar.ProducerOptions{}, err
	}
	return pulsar.ProducerOptions{
		Name:             name,
		Topic:            config.Topic,
		CompressionType:  compressionType,
		CompressionLevel: compressionLevel,
		SendTimeout:      config.SendTimeout,
	}, nil
}

func ParsePulsarCompressionType(compressionType string) (pulsar.CompressionType, error) {
	switch strings.ToLower(compressionType) {
	case "", "none":
		return pulsar.NoCompression, nil
	case "lz4":
		return pulsar.LZ4, nil
	case "zlib":
		return pulsar.ZLib, nil
	case "zstd":
		return pulsar.ZSTD, nil
	default:
		return pulsar.NoCompression, errors.WithStack(&armadaerrors.ErrInvalidArgument{
			Name:    "pulsar.CompressionType",
			Value:   compressionType,
			Message: "Unknown Pulsar compression type. Valid values are none, lz4, zlib and zstd",
		})
	}
}

func ParsePulsarCompressionLevel(compressionLevel string) (pulsar.CompressionLevel, error) {
	switch strings.ToLower(compressionLevel) {
	case "", "default":
		return pulsar.Default, nil
	case "faster":
		return pulsar.Faster, nil
	case "better":
		return pulsar.Better, nil
	default:
		return pulsar.Default, errors.WithStack(&armadaerrors.ErrInvalidArgument{
			Name:    "pulsar.CompressionLevel",
			Value:   compressionLevel,
			Message: "Unknown Pulsar compression level. Valid values are default, faster and better",
		})
	}
}

func getTokenPath(config *commonconfig.PulsarConfig) (string, error) {
	if strings.ToLower(config.AuthenticationType) != "jwt" {
		return "", errors.WithStack(&armadaerrors.ErrInvalidArgument{
			Name:    "pulsar.AuthenticationType",
			Value:   config.AuthenticationType,
			Message: "Only JWT Authentication for Pulsar is supported right now.",
		})
	}
	if strings.TrimSpace(config.JwtTokenPath) == "" {
		return "", errors.WithStack(&armadaerrors.ErrInvalidArgument{
			Name:    "pulsar.JwtTokenPath",
			Value:   config.JwtTokenPath,
			Message: "JWT authentication was configured for Pulsar but no JwtTokenPath was supplied",
		})
	}
	return config.JwtTokenPath, nil
}
