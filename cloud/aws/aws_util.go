package aws

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
)

// newAwsSession returns a shared AWS API session for the given region.
func newAwsSession(region string) *session.Session {
	sess := session.Must(session.NewSession())
	return sess.Copy(&aws.Config{Region: aws.String(region)})
}

// DescribeAWSRegion attempts to dynamically determine the AWS region the
// daemon is running in by querying the EC2 instance metadata service.
func DescribeAWSRegion() (string, error) {
	sess := session.Must(session.NewSession())
	svc := ec2metadata.New(sess)

	identity, err := svc.GetInstanceIdentityDocument()
	if err != nil {
		return "", err
	}

	return identity.Region, nil
}
