package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowgate/transport"
	"github.com/drblury/flowgate/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()

	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "aws", caps.Name)
	assert.False(t, caps.FitsMessage(300*1024))
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.AWSCapabilities, Capabilities())
}

type captured struct {
	pub       *transporttest.Publisher
	sub       *transporttest.Subscriber
	account   string
	region    string
	pubConfig sns.PublisherConfig
	subConfig sns.SubscriberConfig
}

func stubAWS(t *testing.T, loadErr, pubErr, subErr error) *captured {
	t.Helper()
	originalLoader, originalResolver := DefaultConfigLoader, TopicResolverFactory
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalLoader
		TopicResolverFactory = originalResolver
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})

	c := &captured{pub: &transporttest.Publisher{}, sub: &transporttest.Subscriber{}}
	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		if loadErr != nil {
			return aws.Config{}, loadErr
		}
		return aws.Config{Region: "eu-central-1"}, nil
	}
	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		c.account, c.region = accountID, region
		return &sns.GenerateArnTopicResolver{}, nil
	}
	PublisherFactory = func(cfg sns.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		c.pubConfig = cfg
		if pubErr != nil {
			return nil, pubErr
		}
		return c.pub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, _ sqs.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		c.subConfig = cfg
		if subErr != nil {
			return nil, subErr
		}
		return c.sub, nil
	}
	return c
}

func TestBuild(t *testing.T) {
	t.Run("creates transport", func(t *testing.T) {
		c := stubAWS(t, nil, nil, nil)

		tr, err := Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1", AWSAccountID: "123456789012"}, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Same(t, c.pub, tr.Publisher)
		assert.Same(t, c.sub, tr.Subscriber)
		assert.Equal(t, "123456789012", c.account)
		assert.Equal(t, "us-east-1", c.region)
		assert.Empty(t, c.pubConfig.OptFns)
	})

	t.Run("falls back to loaded region", func(t *testing.T) {
		c := stubAWS(t, nil, nil, nil)
		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "eu-central-1", c.region)
	})

	t.Run("localstack endpoint overrides both clients", func(t *testing.T) {
		c := stubAWS(t, nil, nil, nil)
		_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "http://localhost:4566"}, nil)
		require.NoError(t, err)
		assert.Equal(t, localstackAccountID, c.account)
		assert.Len(t, c.pubConfig.OptFns, 1)
		assert.Len(t, c.subConfig.OptFns, 1)
	})

	t.Run("returns loader error", func(t *testing.T) {
		stubAWS(t, errors.New("config error"), nil, nil)
		_, err := Build(context.Background(), &transporttest.Config{}, nil)
		assert.ErrorContains(t, err, "config error")
	})

	t.Run("returns publisher error", func(t *testing.T) {
		stubAWS(t, nil, errors.New("publisher error"), nil)
		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, nil)
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("closes publisher on subscriber error", func(t *testing.T) {
		c := stubAWS(t, nil, nil, errors.New("subscriber error"))
		_, err := Build(context.Background(), &transporttest.Config{AWSAccountID: "123456789012"}, nil)
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, c.pub.Closed)
	})
}

func TestInstanceQueueName(t *testing.T) {
	gen := instanceQueueName("abc")
	name, err := gen(context.Background(), sns.TopicArn("arn:aws:sns:us-east-1:123456789012:api-gw-responses"))
	require.NoError(t, err)
	assert.Equal(t, "api-gw-responses-abc", name)
}

func TestResolveAccountAndRegion(t *testing.T) {
	t.Run("uses config values", func(t *testing.T) {
		accountID, region := resolveAccountAndRegion(&transporttest.Config{AWSAccountID: "'123456789012'", AWSRegion: "us-west-2"}, watermill.NopLogger{}, "us-east-1")
		assert.Equal(t, "123456789012", accountID)
		assert.Equal(t, "us-west-2", region)
	})

	t.Run("replaces malformed account on localstack", func(t *testing.T) {
		accountID, _ := resolveAccountAndRegion(&transporttest.Config{AWSAccountID: "42", AWSEndpoint: "http://localhost:4566"}, watermill.NopLogger{}, "")
		assert.Equal(t, localstackAccountID, accountID)
	})
}

func TestEndpointURL(t *testing.T) {
	u, err := endpointURL(&transporttest.Config{})
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = endpointURL(&transporttest.Config{AWSEndpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, "localhost:4566", u.Host)

	_, err = endpointURL(&transporttest.Config{AWSEndpoint: "://bad"})
	assert.Error(t, err)
}
