package stats

// Realtime 实现获取实时数据的业务逻辑
//
// 数据来自入口处的采集器，不查询数据库。
func (s *service) Realtime() *RealtimeResponse {
	return &RealtimeResponse{
		RPM:               s.collector.RPM(),
		ActiveConnections: s.collector.ActiveConnections(),
	}
}
