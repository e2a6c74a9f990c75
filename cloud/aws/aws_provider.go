package aws

import (
	"fmt"
	"strings"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/elb"
	"github.com/mitchellh/mapstructure"

	"github.com/rackerlabs/otter-sub001/helper"
	"github.com/rackerlabs/otter-sub001/logging"
	"github.com/rackerlabs/otter-sub001/otter/structs"
)

// groupTag is the instance tag which records the scaling group an instance
// belongs to, and is the authoritative membership marker used for drift
// detection.
const groupTag = "otter:group"

// AwsScalingProvider implements the ScalingProvider interface and provides
// a provider that is capable of performing server lifecycle operations
// against AWS EC2 and classic elastic load balancers.
//
// Create submissions are keyed with the job ID as the EC2 client token, so
// a resubmission after a worker crash resolves to the original instance
// rather than creating a second one.
type AwsScalingProvider struct {
	Ec2Service *ec2.EC2
	ElbService *elb.ELB
}

// serverLaunchArgs are the provider specific launch arguments decoded from
// the opaque launch blueprint payload.
type serverLaunchArgs struct {
	Image    string `mapstructure:"image"`
	Flavor   string `mapstructure:"flavor"`
	Network  string `mapstructure:"network"`
	KeyName  string `mapstructure:"key_name"`
	UserData string `mapstructure:"personality"`
}

// NewAwsScalingProvider is a factory function that generates a new instance
// of the AwsScalingProvider. The region is taken from the provider
// configuration, falling back to dynamic discovery through the instance
// metadata service.
func NewAwsScalingProvider(conf map[string]string) (structs.ScalingProvider, error) {
	region := conf["region"]

	if region == "" {
		discovered, err := DescribeAWSRegion()
		if err != nil {
			return nil, fmt.Errorf("region is required for the aws scaling "+
				"provider and dynamic discovery failed: %v", err)
		}
		region = discovered
	}

	if missing := helper.ParseMetaConfig(conf, []string{"provider"}); len(missing) > 0 {
		return nil, fmt.Errorf("aws scaling provider conf is missing keys: %v",
			strings.Join(missing, ","))
	}

	sess := newAwsSession(region)

	return &AwsScalingProvider{
		Ec2Service: ec2.New(sess),
		ElbService: elb.New(sess),
	}, nil
}

// CreateServer submits an EC2 RunInstances request built from the launch
// blueprint. The returned provider reference is the instance ID.
func (sp *AwsScalingProvider) CreateServer(group structs.GroupID,
	launch *structs.LaunchConfig, clientToken string) (string, error) {

	defer metrics.MeasureSince([]string{"cloud", "aws", "create_server"}, time.Now())

	if launch.Type != structs.LaunchTypeServer {
		return "", fmt.Errorf("the aws scaling provider does not support "+
			"launch configurations of type %v", launch.Type)
	}

	var args serverLaunchArgs
	if err := mapstructure.WeakDecode(launch.Args, &args); err != nil {
		return "", fmt.Errorf("unable to decode the launch blueprint "+
			"arguments: %v", err)
	}

	input := &ec2.RunInstancesInput{
		ClientToken:  aws.String(clientToken),
		ImageId:      aws.String(args.Image),
		InstanceType: aws.String(args.Flavor),
		MinCount:     aws.Int64(1),
		MaxCount:     aws.Int64(1),
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeInstance),
				Tags: []*ec2.Tag{
					{
						Key:   aws.String(groupTag),
						Value: aws.String(group.Key()),
					},
				},
			},
		},
	}

	if args.Network != "" {
		input.SubnetId = aws.String(args.Network)
	}
	if args.KeyName != "" {
		input.KeyName = aws.String(args.KeyName)
	}
	if args.UserData != "" {
		input.UserData = aws.String(args.UserData)
	}

	resp, err := sp.Ec2Service.RunInstances(input)
	if err != nil {
		return "", err
	}

	if len(resp.Instances) == 0 {
		return "", fmt.Errorf("the provider accepted the create request but "+
			"returned no instance for token %v", clientToken)
	}

	instanceID := *resp.Instances[0].InstanceId
	logging.Info("cloud/aws: submitted create request for group %v, "+
		"instance %v", group, instanceID)

	return instanceID, nil
}

// ServerStatus polls EC2 for the state of a previously submitted create
// request.
func (sp *AwsScalingProvider) ServerStatus(providerRef string) (*structs.ServerStatus, error) {
	resp, err := sp.Ec2Service.DescribeInstances(&ec2.DescribeInstancesInput{
		InstanceIds: []*string{aws.String(providerRef)},
	})
	if err != nil {
		return nil, err
	}

	for _, reservation := range resp.Reservations {
		for _, instance := range reservation.Instances {
			status := &structs.ServerStatus{
				ServerID: *instance.InstanceId,
				Created:  aws.TimeValue(instance.LaunchTime),
			}

			switch *instance.State.Name {
			case ec2.InstanceStateNamePending:
				status.State = structs.ServerStateBuilding
			case ec2.InstanceStateNameRunning:
				status.State = structs.ServerStateActive
			default:
				status.State = structs.ServerStateError
				if instance.StateReason != nil {
					status.Fault = aws.StringValue(instance.StateReason.Message)
				}
			}

			return status, nil
		}
	}

	return nil, fmt.Errorf("instance %v is not known to the provider", providerRef)
}

// DeleteServer terminates an instance. An instance that is already gone is
// treated as successfully deleted so the call stays idempotent.
func (sp *AwsScalingProvider) DeleteServer(serverID string) error {
	defer metrics.MeasureSince([]string{"cloud", "aws", "delete_server"}, time.Now())

	_, err := sp.Ec2Service.TerminateInstances(&ec2.TerminateInstancesInput{
		InstanceIds: []*string{aws.String(serverID)},
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok &&
			strings.HasPrefix(awsErr.Code(), "InvalidInstanceID") {
			logging.Debug("cloud/aws: instance %v is already gone", serverID)
			return nil
		}
		return err
	}

	logging.Info("cloud/aws: initiated termination of instance %v", serverID)
	return nil
}

// ListServers returns the provider's authoritative view of the instances
// belonging to a group, identified by the group tag. Terminated instances
// are excluded.
func (sp *AwsScalingProvider) ListServers(group structs.GroupID) ([]structs.ActiveServer, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("tag:" + groupTag),
				Values: []*string{aws.String(group.Key())},
			},
			{
				Name: aws.String("instance-state-name"),
				Values: []*string{
					aws.String(ec2.InstanceStateNamePending),
					aws.String(ec2.InstanceStateNameRunning),
				},
			},
		},
	}

	var servers []structs.ActiveServer

	err := sp.Ec2Service.DescribeInstancesPages(input,
		func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
			for _, reservation := range page.Reservations {
				for _, instance := range reservation.Instances {
					servers = append(servers, structs.ActiveServer{
						ID:      *instance.InstanceId,
						Created: aws.TimeValue(instance.LaunchTime),
					})
				}
			}
			return true
		})
	if err != nil {
		return nil, err
	}

	return servers, nil
}

// AttachLoadBalancer registers an instance with a classic elastic load
// balancer. Registration of an already registered instance is a no-op on
// the provider side.
func (sp *AwsScalingProvider) AttachLoadBalancer(serverID string,
	lb structs.LoadBalancerSpec) error {

	_, err := sp.ElbService.RegisterInstancesWithLoadBalancer(
		&elb.RegisterInstancesWithLoadBalancerInput{
			LoadBalancerName: aws.String(lb.Name),
			Instances: []*elb.Instance{
				{InstanceId: aws.String(serverID)},
			},
		})
	if err != nil {
		return err
	}

	logging.Info("cloud/aws: registered instance %v with load balancer %v",
		serverID, lb.Name)
	return nil
}

// SetNodeDraining enables connection draining on the load balancer with the
// given timeout. Classic load balancers apply draining as a load balancer
// attribute which takes effect when the instance is deregistered.
func (sp *AwsScalingProvider) SetNodeDraining(serverID string,
	lb structs.LoadBalancerSpec, timeout int) error {

	_, err := sp.ElbService.ModifyLoadBalancerAttributes(
		&elb.ModifyLoadBalancerAttributesInput{
			LoadBalancerName: aws.String(lb.Name),
			LoadBalancerAttributes: &elb.LoadBalancerAttributes{
				ConnectionDraining: &elb.ConnectionDraining{
					Enabled: aws.Bool(true),
					Timeout: aws.Int64(int64(timeout)),
				},
			},
		})
	if err != nil {
		return err
	}

	logging.Debug("cloud/aws: enabled connection draining on load balancer "+
		"%v with timeout %v for instance %v", lb.Name, timeout, serverID)
	return nil
}

// DetachLoadBalancer deregisters an instance from a classic elastic load
// balancer.
func (sp *AwsScalingProvider) DetachLoadBalancer(serverID string,
	lb structs.LoadBalancerSpec) error {

	_, err := sp.ElbService.DeregisterInstancesFromLoadBalancer(
		&elb.DeregisterInstancesFromLoadBalancerInput{
			LoadBalancerName: aws.String(lb.Name),
			Instances: []*elb.Instance{
				{InstanceId: aws.String(serverID)},
			},
		})
	if err != nil {
		return err
	}

	logging.Info("cloud/aws: deregistered instance %v from load balancer %v",
		serverID, lb.Name)
	return nil
}
