package config

// User is a uid/gid pair baked into images that run as a service account.
type User struct {
	UID   int    `json:"uid" yaml:"uid"`
	GID   int    `json:"gid" yaml:"gid"`
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
}

// DefaultUsers is the fixed service account table. UIDs are only ever
// appended; removed users keep their number.
var DefaultUsers = map[string]User{
	"kolla-user":            {UID: 42400, GID: 42400},
	"ansible-user":          {UID: 42401, GID: 42401},
	"aodh-user":             {UID: 42402, GID: 42402},
	"barbican-user":         {UID: 42403, GID: 42403},
	"bifrost-user":          {UID: 42404, GID: 42404},
	"ceilometer-user":       {UID: 42405, GID: 42405},
	"cinder-user":           {UID: 42407, GID: 42407},
	"cloudkitty-user":       {UID: 42408, GID: 42408},
	"collectd-user":         {UID: 42409, GID: 42409},
	"designate-user":        {UID: 42411, GID: 42411},
	"elasticsearch-user":    {UID: 42412, GID: 42412},
	"etcd-user":             {UID: 42413, GID: 42413},
	"freezer-user":          {UID: 42414, GID: 42414},
	"glance-user":           {UID: 42415, GID: 42415},
	"gnocchi-user":          {UID: 42416, GID: 42416},
	"grafana-user":          {UID: 42417, GID: 42417},
	"heat-user":             {UID: 42418, GID: 42418},
	"horizon-user":          {UID: 42420, GID: 42420},
	"influxdb-user":         {UID: 42421, GID: 42421},
	"ironic-user":           {UID: 42422, GID: 42422},
	"kafka-user":            {UID: 42423, GID: 42423},
	"keystone-user":         {UID: 42425, GID: 42425},
	"kibana-user":           {UID: 42426, GID: 42426},
	"qemu-user":             {UID: 42427, GID: 42427},
	"magnum-user":           {UID: 42428, GID: 42428},
	"manila-user":           {UID: 42429, GID: 42429},
	"mistral-user":          {UID: 42430, GID: 42430},
	"monasca-user":          {UID: 42431, GID: 42431},
	"murano-user":           {UID: 42433, GID: 42433},
	"mysql-user":            {UID: 42434, GID: 42434},
	"neutron-user":          {UID: 42435, GID: 42435},
	"nova-user":             {UID: 42436, GID: 42436},
	"octavia-user":          {UID: 42437, GID: 42437},
	"rabbitmq-user":         {UID: 42439, GID: 42439},
	"sahara-user":           {UID: 42441, GID: 42441},
	"senlin-user":           {UID: 42443, GID: 42443},
	"solum-user":            {UID: 42444, GID: 42444},
	"swift-user":            {UID: 42445, GID: 42445},
	"tacker-user":           {UID: 42446, GID: 42446},
	"td-agent-user":         {UID: 42447, GID: 42447},
	"telegraf-user":         {UID: 42448, GID: 42448},
	"trove-user":            {UID: 42449, GID: 42449},
	"vmtp-user":             {UID: 42450, GID: 42450},
	"watcher-user":          {UID: 42451, GID: 42451},
	"zookeeper-user":        {UID: 42453, GID: 42453},
	"haproxy-user":          {UID: 42454, GID: 42454},
	"memcached-user":        {UID: 42457, GID: 42457},
	"vitrage-user":          {UID: 42459, GID: 42459},
	"redis-user":            {UID: 42460, GID: 42460},
	"ironic-inspector-user": {UID: 42461, GID: 42461},
	"odl-user":              {UID: 42462, GID: 42462},
	"zun-user":              {UID: 42463, GID: 42463},
	"qdrouterd-user":        {UID: 42465, GID: 42465},
	"ec2api-user":           {UID: 42466, GID: 42466},
	"skydive-user":          {UID: 42468, GID: 42468},
	"kuryr-user":            {UID: 42469, GID: 42469},
	"blazar-user":           {UID: 42471, GID: 42471},
	"prometheus-user":       {UID: 42472, GID: 42472},
	"fluentd-user":          {UID: 42474, GID: 42474},
	"logstash-user":         {UID: 42478, GID: 42478},
	"storm-user":            {UID: 42479, GID: 42479},
	"placement-user":        {UID: 42482, GID: 42482},
	"cyborg-user":           {UID: 42483, GID: 42483},
	"masakari-user":         {UID: 42485, GID: 42485},
	"hacluster-user":        {UID: 42486, GID: 42486},
	"proxysql-user":         {UID: 42487, GID: 42487},
}
