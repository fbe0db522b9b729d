package stats

// Providers 实现获取提供商运行状态的业务逻辑
//
// 按目录顺序返回每个提供商的可用性与凭证轮换位置。
// 没有适配器的提供商（测试或配置残留）视为不可用。
func (s *service) Providers() []*ProviderStatus {
	out := make([]*ProviderStatus, 0, len(s.catalog.Providers))

	for _, id := range s.catalog.ProviderOrder {
		provider, ok := s.catalog.Provider(id)
		if !ok {
			continue
		}

		available := false
		if a, found := s.adapters.Get(id); found {
			available = a.Available()
		}

		status := &ProviderStatus{
			ID:           provider.ID,
			Kind:         string(provider.Kind),
			Format:       provider.Format,
			Tier:         string(provider.Tier),
			GatingExempt: provider.GatingExempt,
			Available:    available,
			Credentials:  len(provider.Credentials),
		}

		if provider.RotationCapable() {
			rotation := &RotationStatus{
				Strategy:        provider.Rotation.Strategy,
				CooldownSeconds: int(provider.Rotation.Cooldown.Seconds()),
			}
			if index, rotatedAt, found := s.rotator.State(id); found {
				rotation.CurrentIndex = index
				if !rotatedAt.IsZero() {
					at := rotatedAt
					rotation.RotatedAt = &at
				}
			}
			status.Rotation = rotation
		}

		out = append(out, status)
	}

	return out
}
