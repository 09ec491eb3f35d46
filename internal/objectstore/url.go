package objectstore

import (
	"net/url"
	"strings"
)

// BucketPlaceholder подставляется в endpoint вместо имени bucket,
// например https://{bucket}.s3-ap-southeast-2.amazonaws.com.
const BucketPlaceholder = "{bucket}"

// ObjectURL строит адрес объекта: <endpoint>/<key>, где {bucket} в endpoint заменён на bucket.
// Если placeholder отсутствует, bucket добавляется первым сегментом пути.
func ObjectURL(endpoint, bucket, key string) string {
	base := strings.TrimRight(endpoint, "/")
	if strings.Contains(base, BucketPlaceholder) {
		base = strings.ReplaceAll(base, BucketPlaceholder, bucket)
	} else if bucket != "" {
		base += "/" + url.PathEscape(bucket)
	}
	return base + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
